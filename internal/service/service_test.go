package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/togglemaster/toggled/internal/repository"
)

type fakeRepository struct {
	createFunc     func(ctx context.Context, name string, enabled bool) (repository.Flag, error)
	getFunc        func(ctx context.Context, name string) (repository.Flag, error)
	listFunc       func(ctx context.Context) ([]repository.Flag, error)
	setEnabledFunc func(ctx context.Context, name string, enabled bool) (repository.Flag, error)
}

func (f *fakeRepository) Create(ctx context.Context, name string, enabled bool) (repository.Flag, error) {
	return f.createFunc(ctx, name, enabled)
}

func (f *fakeRepository) Get(ctx context.Context, name string) (repository.Flag, error) {
	return f.getFunc(ctx, name)
}

func (f *fakeRepository) List(ctx context.Context) ([]repository.Flag, error) {
	return f.listFunc(ctx)
}

func (f *fakeRepository) SetEnabled(ctx context.Context, name string, enabled bool) (repository.Flag, error) {
	return f.setEnabledFunc(ctx, name, enabled)
}

type publishedEvent struct {
	flagName string
	userID   string
	result   bool
}

type channelPublisher struct {
	events chan publishedEvent
}

func newChannelPublisher() *channelPublisher {
	return &channelPublisher{events: make(chan publishedEvent, 8)}
}

func (p *channelPublisher) Publish(_ context.Context, flagName, userID string, result bool) {
	p.events <- publishedEvent{flagName: flagName, userID: userID, result: result}
}

func mustNew(t *testing.T, repo Repository, publisher Publisher, opts ...Option) *Service {
	t.Helper()
	svc, err := New(repo, publisher, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func TestNew_RequiresRepository(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("New(nil, nil) should fail")
	}
}

func TestCreateFlag_EmptyName(t *testing.T) {
	svc := mustNew(t, &fakeRepository{}, nil)

	for _, name := range []string{"", "   "} {
		if _, err := svc.CreateFlag(context.Background(), name, true); !errors.Is(err, ErrNameRequired) {
			t.Errorf("CreateFlag(%q) error = %v, want ErrNameRequired", name, err)
		}
	}
}

func TestCreateFlag_Duplicate(t *testing.T) {
	repo := &fakeRepository{
		createFunc: func(context.Context, string, bool) (repository.Flag, error) {
			return repository.Flag{}, repository.ErrDuplicateName
		},
	}
	svc := mustNew(t, repo, nil)

	if _, err := svc.CreateFlag(context.Background(), "dark-mode", true); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("error = %v, want ErrDuplicateName", err)
	}
}

func TestCreateFlag_Success(t *testing.T) {
	repo := &fakeRepository{
		createFunc: func(_ context.Context, name string, enabled bool) (repository.Flag, error) {
			return repository.Flag{Name: name, Enabled: enabled, CreatedAt: time.Now()}, nil
		},
	}
	svc := mustNew(t, repo, nil)

	flag, err := svc.CreateFlag(context.Background(), "dark-mode", true)
	if err != nil {
		t.Fatalf("CreateFlag() error = %v", err)
	}
	if flag.Name != "dark-mode" || !flag.Enabled {
		t.Errorf("flag = %+v, want dark-mode/true", flag)
	}
}

func TestGetFlag_NotFound(t *testing.T) {
	repo := &fakeRepository{
		getFunc: func(context.Context, string) (repository.Flag, error) {
			return repository.Flag{}, repository.ErrNotFound
		},
	}
	svc := mustNew(t, repo, nil)

	if _, err := svc.GetFlag(context.Background(), "missing"); !errors.Is(err, ErrFlagNotFound) {
		t.Errorf("error = %v, want ErrFlagNotFound", err)
	}
}

func TestSetEnabled_NotFound(t *testing.T) {
	repo := &fakeRepository{
		setEnabledFunc: func(context.Context, string, bool) (repository.Flag, error) {
			return repository.Flag{}, repository.ErrNotFound
		},
	}
	svc := mustNew(t, repo, nil)

	if _, err := svc.SetEnabled(context.Background(), "missing", true); !errors.Is(err, ErrFlagNotFound) {
		t.Errorf("error = %v, want ErrFlagNotFound", err)
	}
}

func TestEvaluate_Validation(t *testing.T) {
	svc := mustNew(t, &fakeRepository{}, nil)

	if _, err := svc.Evaluate(context.Background(), "", "user-1"); !errors.Is(err, ErrNameRequired) {
		t.Errorf("empty flag name: error = %v, want ErrNameRequired", err)
	}
	if _, err := svc.Evaluate(context.Background(), "dark-mode", ""); !errors.Is(err, ErrUserIDRequired) {
		t.Errorf("empty user id: error = %v, want ErrUserIDRequired", err)
	}
}

func TestEvaluate_UnknownFlagPublishesNothing(t *testing.T) {
	repo := &fakeRepository{
		getFunc: func(context.Context, string) (repository.Flag, error) {
			return repository.Flag{}, repository.ErrNotFound
		},
	}
	publisher := newChannelPublisher()
	svc := mustNew(t, repo, publisher)

	if _, err := svc.Evaluate(context.Background(), "missing", "user-1"); !errors.Is(err, ErrFlagNotFound) {
		t.Fatalf("error = %v, want ErrFlagNotFound", err)
	}

	select {
	case event := <-publisher.events:
		t.Errorf("unexpected publish for unknown flag: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvaluate_ReturnsResultAndPublishes(t *testing.T) {
	repo := &fakeRepository{
		getFunc: func(_ context.Context, name string) (repository.Flag, error) {
			return repository.Flag{Name: name, Enabled: true}, nil
		},
	}
	publisher := newChannelPublisher()
	svc := mustNew(t, repo, publisher)

	result, err := svc.Evaluate(context.Background(), "dark-mode", "user-1")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.FlagName != "dark-mode" || !result.Result {
		t.Errorf("result = %+v, want dark-mode/true", result)
	}

	select {
	case event := <-publisher.events:
		want := publishedEvent{flagName: "dark-mode", userID: "user-1", result: true}
		if event != want {
			t.Errorf("published = %+v, want %+v", event, want)
		}
	case <-time.After(time.Second):
		t.Fatal("evaluation was never published")
	}
}

func TestEvaluate_PublishSurvivesRequestCancellation(t *testing.T) {
	repo := &fakeRepository{
		getFunc: func(_ context.Context, name string) (repository.Flag, error) {
			return repository.Flag{Name: name, Enabled: false}, nil
		},
	}

	ctxErr := make(chan error, 1)
	publisher := &ctxCheckingPublisher{ctxErr: ctxErr}
	svc := mustNew(t, repo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.Evaluate(ctx, "dark-mode", "user-1"); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	cancel()

	select {
	case err := <-ctxErr:
		if err != nil {
			t.Errorf("publish context error = %v, want nil after request cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher was never invoked")
	}
}

func TestEvaluate_NilPublisher(t *testing.T) {
	repo := &fakeRepository{
		getFunc: func(_ context.Context, name string) (repository.Flag, error) {
			return repository.Flag{Name: name, Enabled: true}, nil
		},
	}
	svc := mustNew(t, repo, nil)

	if _, err := svc.Evaluate(context.Background(), "dark-mode", "user-1"); err != nil {
		t.Fatalf("Evaluate() with nil publisher error = %v", err)
	}
}

func TestEvaluate_RecordsOutcome(t *testing.T) {
	repo := &fakeRepository{
		getFunc: func(_ context.Context, name string) (repository.Flag, error) {
			return repository.Flag{Name: name, Enabled: true}, nil
		},
	}

	var results []bool
	svc := mustNew(t, repo, nil, WithEvaluationOutcome(func(result bool) { results = append(results, result) }))

	if _, err := svc.Evaluate(context.Background(), "dark-mode", "user-1"); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(results) != 1 || !results[0] {
		t.Errorf("recorded results = %v, want [true]", results)
	}
}

type ctxCheckingPublisher struct {
	ctxErr chan error
}

func (p *ctxCheckingPublisher) Publish(ctx context.Context, _, _ string, _ bool) {
	// Give the request context time to be cancelled before checking.
	time.Sleep(20 * time.Millisecond)
	p.ctxErr <- ctx.Err()
}

// Package service implements the toggle service: flag CRUD on top of the
// repository, and evaluation with best-effort analytics publishing.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/togglemaster/toggled/internal/repository"
)

var (
	// ErrFlagNotFound is returned when the named flag does not exist.
	ErrFlagNotFound = errors.New("flag not found")

	// ErrDuplicateName is returned by CreateFlag when the name is taken.
	ErrDuplicateName = errors.New("flag name already exists")

	// ErrNameRequired is returned when a flag name is empty or whitespace.
	ErrNameRequired = errors.New("flag name is required")

	// ErrUserIDRequired is returned by Evaluate when the caller identity is
	// missing.
	ErrUserIDRequired = errors.New("user id is required")
)

// Repository is the persistence surface the service needs.
type Repository interface {
	Create(ctx context.Context, name string, enabled bool) (repository.Flag, error)
	Get(ctx context.Context, name string) (repository.Flag, error)
	List(ctx context.Context) ([]repository.Flag, error)
	SetEnabled(ctx context.Context, name string, enabled bool) (repository.Flag, error)
}

// Publisher emits evaluation events. Implementations must be safe for
// concurrent use and must not return errors to the caller.
type Publisher interface {
	Publish(ctx context.Context, flagName, userID string, result bool)
}

// EvaluationResult is the authoritative answer returned to the caller.
type EvaluationResult struct {
	FlagName string `json:"flag_name"`
	Result   bool   `json:"result"`
}

// Service composes the flag repository with the evaluation publisher.
type Service struct {
	repo         Repository
	publisher    Publisher
	logger       *slog.Logger
	onEvaluation func(result bool)
}

// Option customises a [Service].
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEvaluationOutcome installs a hook invoked with each evaluation's
// result, typically to feed a metrics counter.
func WithEvaluationOutcome(fn func(result bool)) Option {
	return func(s *Service) {
		if fn != nil {
			s.onEvaluation = fn
		}
	}
}

// New creates a [Service]. publisher may be nil, in which case evaluations
// are served without emitting analytics events.
func New(repo Repository, publisher Publisher, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repository is nil")
	}

	s := &Service{
		repo:         repo,
		publisher:    publisher,
		logger:       slog.Default(),
		onEvaluation: func(bool) {},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CreateFlag inserts a new flag. Returns [ErrDuplicateName] if the name is
// already taken.
func (s *Service) CreateFlag(ctx context.Context, name string, enabled bool) (repository.Flag, error) {
	if strings.TrimSpace(name) == "" {
		return repository.Flag{}, ErrNameRequired
	}

	created, err := s.repo.Create(ctx, name, enabled)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return repository.Flag{}, ErrDuplicateName
		}
		return repository.Flag{}, fmt.Errorf("create flag: %w", err)
	}

	return created, nil
}

// GetFlag retrieves a flag by name.
func (s *Service) GetFlag(ctx context.Context, name string) (repository.Flag, error) {
	if strings.TrimSpace(name) == "" {
		return repository.Flag{}, ErrNameRequired
	}

	flag, err := s.repo.Get(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Flag{}, ErrFlagNotFound
		}
		return repository.Flag{}, fmt.Errorf("get flag: %w", err)
	}

	return flag, nil
}

// ListFlags returns all flags sorted by name ascending.
func (s *Service) ListFlags(ctx context.Context) ([]repository.Flag, error) {
	flags, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}

	return flags, nil
}

// SetEnabled updates a flag's enabled state. Returns [ErrFlagNotFound] if
// the flag does not exist.
func (s *Service) SetEnabled(ctx context.Context, name string, enabled bool) (repository.Flag, error) {
	if strings.TrimSpace(name) == "" {
		return repository.Flag{}, ErrNameRequired
	}

	updated, err := s.repo.SetEnabled(ctx, name, enabled)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Flag{}, ErrFlagNotFound
		}
		return repository.Flag{}, fmt.Errorf("set enabled: %w", err)
	}

	return updated, nil
}

// Evaluate returns the flag's current enabled value for the given user and
// emits one evaluation event. The event publish runs on a detached
// goroutine and is never awaited, so queue latency or failure cannot delay
// or fail the response. Unknown flags return [ErrFlagNotFound] and publish
// nothing.
func (s *Service) Evaluate(ctx context.Context, flagName, userID string) (EvaluationResult, error) {
	if strings.TrimSpace(flagName) == "" {
		return EvaluationResult{}, ErrNameRequired
	}
	if strings.TrimSpace(userID) == "" {
		return EvaluationResult{}, ErrUserIDRequired
	}

	flag, err := s.GetFlag(ctx, flagName)
	if err != nil {
		return EvaluationResult{}, err
	}

	result := EvaluationResult{FlagName: flag.Name, Result: flag.Enabled}
	s.onEvaluation(flag.Enabled)
	s.publishEvaluationBestEffort(ctx, flag.Name, userID, flag.Enabled)

	return result, nil
}

func (s *Service) publishEvaluationBestEffort(ctx context.Context, flagName, userID string, result bool) {
	if s.publisher == nil {
		return
	}

	// The response has already been decided; the publish must survive the
	// request context being cancelled. The publisher bounds its own send.
	publishCtx := context.WithoutCancel(ctx)
	go s.publisher.Publish(publishCtx, flagName, userID, result)
}

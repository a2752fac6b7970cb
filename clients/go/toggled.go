// Package toggled provides client interfaces and domain types for the
// toggled feature flag service.
//
// Use the sub-package to create a transport-specific client:
//
//	import toggledhttp "github.com/togglemaster/toggled/clients/go/http"
package toggled

import "context"

// FlagManager covers CRUD operations on feature flags.
type FlagManager interface {
	CreateFlag(ctx context.Context, name string, enabled bool) (Flag, error)
	GetFlag(ctx context.Context, name string) (Flag, error)
	ListFlags(ctx context.Context) ([]Flag, error)
	SetEnabled(ctx context.Context, name string, enabled bool) (Flag, error)
}

// Evaluator resolves a flag for one user, emitting an analytics event
// server-side.
type Evaluator interface {
	Evaluate(ctx context.Context, flagName, userID string) (bool, error)
}

// Flag is the domain representation of a feature flag.
type Flag struct {
	Name    string
	Enabled bool
}

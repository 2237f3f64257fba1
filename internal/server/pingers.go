package server

import (
	"context"
	"fmt"
)

// pingable is any dependency exposing a Ping method. Both the Qdrant store
// and the relational store satisfy it.
type pingable interface {
	Ping(ctx context.Context) error
}

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given
	// context. Returns nil on success, a descriptive error on failure.
	Ping(ctx context.Context) error

	// Name returns a short human-readable label used in readiness responses
	// (e.g. "qdrant", "sqlite").
	Name() string
}

// namedPinger adapts any pingable dependency into a Pinger with a label.
type namedPinger struct {
	name string
	dep  pingable
}

// NewPinger wraps a dependency's Ping method with the given readiness label.
func NewPinger(name string, dep pingable) Pinger {
	return &namedPinger{name: name, dep: dep}
}

func (p *namedPinger) Name() string { return p.name }

func (p *namedPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	return nil
}

package model

import (
	"context"
	"errors"
	"fmt"
)

// ActorContext carries the identity of the caller performing an operation.
// It is immutable after construction and safe for concurrent reads.
type ActorContext struct {
	UserID        string
	Role          Role
	StateUTID     string
	CorrelationID string
}

// Validate checks that all mandatory fields are present.
// UserID and a known Role must be set.
func (ac *ActorContext) Validate() error {
	var errs []error
	if ac.UserID == "" {
		errs = append(errs, fmt.Errorf("UserID is required"))
	}
	if _, err := ParseRole(string(ac.Role)); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type contextKey struct{}

// WithActor attaches an ActorContext to the given context.
func WithActor(ctx context.Context, actor *ActorContext) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom extracts the ActorContext from the context, or returns nil if
// not present.
func ActorFrom(ctx context.Context) *ActorContext {
	actor, _ := ctx.Value(contextKey{}).(*ActorContext)
	return actor
}

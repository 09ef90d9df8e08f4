// Package identity resolves who is calling. Staff authenticate with tokens
// issued by this service; public users carry a session from the third-party
// session provider. Call sites ask a Resolver and branch on Caller.Kind.
package identity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gotus/internal/models"
)

type Kind string

const (
	KindStaff  Kind = "staff"
	KindPublic Kind = "public"
)

// ErrNoIdentity means the request carries no credential a resolver
// understands.
var ErrNoIdentity = errors.New("no caller identity")

type PublicUser struct {
	Email   string    `json:"email"`
	Name    string    `json:"name,omitempty"`
	Image   string    `json:"image,omitempty"`
	Expires time.Time `json:"expires"`
}

type Caller struct {
	Kind    Kind
	Account *models.Account
	Public  *PublicUser
}

func (c *Caller) IsStaff() bool {
	return c != nil && c.Kind == KindStaff && c.Account != nil
}

type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Caller, error)
}

type ResolverFunc func(ctx context.Context, r *http.Request) (*Caller, error)

func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (*Caller, error) {
	return f(ctx, r)
}

// Chain tries each resolver in order and returns the first identity found.
// When every resolver fails, the first failure other than ErrNoIdentity is
// returned so a bad staff token is reported as such.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, r *http.Request) (*Caller, error) {
	var firstErr error
	for _, resolver := range c {
		if resolver == nil {
			continue
		}
		caller, err := resolver.Resolve(ctx, r)
		if err == nil {
			return caller, nil
		}
		if firstErr == nil && !errors.Is(err, ErrNoIdentity) {
			firstErr = err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrNoIdentity
}

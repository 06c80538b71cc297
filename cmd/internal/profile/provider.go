package profile

import (
	"context"
	"strings"
)

// IdentityUser is what an identity provider reports about the current user.
type IdentityUser struct {
	SignedIn bool
	// Token is the raw bearer token; the store adds the "Bearer " prefix.
	Token  string
	UserID string
	Name   string
}

// IdentityProvider is the external sign-in system.
//
// Listen must register fn and return without blocking; fn is then called on every
// sign-in change until ctx is cancelled.
type IdentityProvider interface {
	IsSignedIn(ctx context.Context) (bool, error)
	CurrentUser(ctx context.Context) (IdentityUser, error)
	Listen(ctx context.Context, fn func(IdentityUser))
}

// StaticProvider reports a fixed user and never changes. An empty token means signed out.
type StaticProvider struct {
	Token  string
	UserID string
	Name   string
}

func (p StaticProvider) user() IdentityUser {
	tok := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p.Token), "Bearer "))
	return IdentityUser{SignedIn: tok != "", Token: tok, UserID: p.UserID, Name: p.Name}
}

func (p StaticProvider) IsSignedIn(context.Context) (bool, error) {
	return p.user().SignedIn, nil
}

func (p StaticProvider) CurrentUser(context.Context) (IdentityUser, error) {
	return p.user(), nil
}

// Listen is a no-op: a static identity never changes.
func (StaticProvider) Listen(context.Context, func(IdentityUser)) {}

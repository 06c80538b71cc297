// Package profile tracks the signed-in identity and the remote profile that goes with it.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"pointy/cmd/internal/remote"
)

// API is the subset of the remote client the store calls.
type API interface {
	FetchProfile(ctx context.Context) (*remote.Profile, error)
	UpdateProfile(ctx context.Context, in remote.ProfileUpdate) error
}

// ErrorReporter receives failures that are shown to the user instead of returned.
type ErrorReporter interface {
	Register(err error)
}

// Store holds the credential and remote profile. It satisfies remote.CredentialSource.
type Store struct {
	log      *slog.Logger
	provider IdentityProvider
	api      API
	errs     ErrorReporter

	mu         sync.RWMutex
	signedIn   bool
	credential string
	userID     string
	profile    *remote.Profile

	ready     chan struct{}
	readyOnce sync.Once
}

// New constructs a store. errs may be nil, in which case fetch failures are only logged.
func New(log *slog.Logger, provider IdentityProvider, api API, errs ErrorReporter) *Store {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Store{
		log:      log,
		provider: provider,
		api:      api,
		errs:     errs,
		ready:    make(chan struct{}),
	}
}

// SetCredential derives the Authorization value from an identity-provider user.
func (s *Store) SetCredential(u IdentityUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.SignedIn && u.Token != "" {
		s.signedIn = true
		s.credential = "Bearer " + u.Token
		s.userID = u.UserID
		return
	}
	s.signedIn = false
	s.credential = ""
	s.userID = ""
}

// SetRemoteProfile stores (or clears, with nil) the fetched profile.
func (s *Store) SetRemoteProfile(p *remote.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.profile = nil
		return
	}
	cp := *p
	s.profile = &cp
}

// Initialize registers the sign-in listener, checks the initial sign-in state once and
// marks the store ready. When already signed in it sets the credential and fetches the
// profile once.
func (s *Store) Initialize(ctx context.Context) error {
	s.provider.Listen(ctx, func(u IdentityUser) {
		s.SetCredential(u)
		s.log.Info("profile.identity.change", "signed_in", u.SignedIn, "user_id", u.UserID)
		s.FetchProfile(ctx)
	})

	signedIn, err := s.provider.IsSignedIn(ctx)
	if err != nil {
		return fmt.Errorf("profile: check sign-in: %w", err)
	}
	markReady := func() { s.readyOnce.Do(func() { close(s.ready) }) }

	if !signedIn {
		markReady()
		s.log.Info("profile.ready", "signed_in", false)
		return nil
	}

	// The credential is in place before readiness is observable.
	u, err := s.provider.CurrentUser(ctx)
	if err != nil {
		markReady()
		return fmt.Errorf("profile: current user: %w", err)
	}
	s.SetCredential(u)
	markReady()
	s.log.Info("profile.ready", "signed_in", true, "user_id", u.UserID)
	s.FetchProfile(ctx)
	return nil
}

// FetchProfile loads the remote profile. Failures go to the error reporter and are not
// returned. A signed-out store clears the profile instead of calling the API.
func (s *Store) FetchProfile(ctx context.Context) {
	if !s.SignedIn() {
		s.SetRemoteProfile(nil)
		return
	}
	p, err := s.api.FetchProfile(ctx)
	if err != nil {
		s.log.Info("profile.fetch.fail", "err", err)
		if s.errs != nil {
			s.errs.Register(fmt.Errorf("profile: fetch: %w", err))
		}
		return
	}
	s.SetRemoteProfile(p)
}

// UpdateProfile writes the profile and, on success, updates the local copy.
// Unlike FetchProfile, errors are returned to the caller.
func (s *Store) UpdateProfile(ctx context.Context, in remote.ProfileUpdate) error {
	if err := s.api.UpdateProfile(ctx, in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		s.profile = &remote.Profile{}
	}
	s.profile.Name = in.Name
	s.profile.Handle = in.Handle
	return nil
}

// Credential returns "Bearer <token>" when signed in, else "".
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// SignedIn reports the current sign-in state.
func (s *Store) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signedIn
}

// UserID is the identity provider's user id, or "" when signed out.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Profile returns a copy of the remote profile, or nil.
func (s *Store) Profile() *remote.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	cp := *s.profile
	return &cp
}

// Ready reports whether Initialize has checked the sign-in state.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until Ready or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

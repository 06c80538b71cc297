package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pointy/cmd/internal/remote"
)

type fakeAPI struct {
	mu      sync.Mutex
	fetches int
	err     error
	updated []remote.ProfileUpdate
}

func (f *fakeAPI) FetchProfile(context.Context) (*remote.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return &remote.Profile{Email: "a@example.com", Name: "Ann"}, nil
}

func (f *fakeAPI) UpdateProfile(_ context.Context, in remote.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updated = append(f.updated, in)
	return nil
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeProvider struct {
	user IdentityUser
	err  error

	mu       sync.Mutex
	listener func(IdentityUser)
}

func (p *fakeProvider) IsSignedIn(context.Context) (bool, error) { return p.user.SignedIn, p.err }

func (p *fakeProvider) CurrentUser(context.Context) (IdentityUser, error) { return p.user, nil }

func (p *fakeProvider) Listen(_ context.Context, fn func(IdentityUser)) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
}

func (p *fakeProvider) emit(u IdentityUser) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	fn(u)
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeReporter) Register(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStore_SetCredential(t *testing.T) {
	t.Parallel()

	s := New(quietLog(), StaticProvider{}, &fakeAPI{}, nil)

	s.SetCredential(IdentityUser{SignedIn: true, Token: "abc", UserID: "u1"})
	if got := s.Credential(); got != "Bearer abc" || !s.SignedIn() || s.UserID() != "u1" {
		t.Fatalf("credential=%q signedIn=%v", got, s.SignedIn())
	}

	s.SetCredential(IdentityUser{SignedIn: false, Token: "stale"})
	if got := s.Credential(); got != "" || s.SignedIn() {
		t.Fatalf("signed-out credential=%q signedIn=%v", got, s.SignedIn())
	}
}

func TestStore_InitializeSignedInFetchesOnce(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	prov := &fakeProvider{user: IdentityUser{SignedIn: true, Token: "tok", UserID: "u1"}}
	s := New(quietLog(), prov, api, &fakeReporter{})

	if s.Ready() {
		t.Fatalf("ready before Initialize")
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !s.Ready() {
		t.Fatalf("not ready after Initialize")
	}
	if got := s.Credential(); got != "Bearer tok" {
		t.Fatalf("credential=%q", got)
	}
	if got := api.fetchCount(); got != 1 {
		t.Fatalf("fetches=%d want=1", got)
	}
	if p := s.Profile(); p == nil || p.Name != "Ann" {
		t.Fatalf("profile=%+v", p)
	}

	// Each identity change re-fetches.
	prov.emit(IdentityUser{SignedIn: true, Token: "tok2", UserID: "u1"})
	if got := s.Credential(); got != "Bearer tok2" {
		t.Fatalf("credential after change=%q", got)
	}
	if got := api.fetchCount(); got != 2 {
		t.Fatalf("fetches after change=%d want=2", got)
	}

	prov.emit(IdentityUser{SignedIn: false})
	if s.Credential() != "" || s.Profile() != nil {
		t.Fatalf("sign-out must clear credential and profile")
	}
}

func TestStore_InitializeSignedOut(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := New(quietLog(), &fakeProvider{}, api, nil)

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !s.Ready() || s.SignedIn() || s.Credential() != "" {
		t.Fatalf("ready=%v signedIn=%v credential=%q", s.Ready(), s.SignedIn(), s.Credential())
	}
	if got := api.fetchCount(); got != 0 {
		t.Fatalf("fetches=%d want=0", got)
	}
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestStore_InitializeProviderFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("provider down")
	s := New(quietLog(), &fakeProvider{err: boom}, &fakeAPI{}, nil)
	if err := s.Initialize(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v want=%v", err, boom)
	}
	if s.Ready() {
		t.Fatalf("must not be ready when the sign-in check fails")
	}
}

func TestStore_FetchProfileFailureGoesToReporter(t *testing.T) {
	t.Parallel()

	apiErr := &remote.StatusError{Op: "fetchProfile", Status: 500}
	rep := &fakeReporter{}
	s := New(quietLog(), StaticProvider{Token: "tok"}, &fakeAPI{err: apiErr}, rep)

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize must swallow fetch failures: %v", err)
	}
	if got := rep.count(); got != 1 {
		t.Fatalf("reported=%d want=1", got)
	}
	if !remote.IsStatus(rep.errs[0], 500) {
		t.Fatalf("reported err=%v", rep.errs[0])
	}
	if s.Profile() != nil {
		t.Fatalf("profile must stay unset")
	}
}

func TestStore_UpdateProfilePropagatesErrors(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := New(quietLog(), StaticProvider{Token: "tok"}, api, nil)
	handle := "annie"
	if err := s.UpdateProfile(context.Background(), remote.ProfileUpdate{Name: "Ann", Handle: &handle}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p := s.Profile(); p == nil || p.Name != "Ann" || *p.Handle != "annie" {
		t.Fatalf("profile=%+v", p)
	}

	api.err = errors.New("nope")
	if err := s.UpdateProfile(context.Background(), remote.ProfileUpdate{Name: "X"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStore_WaitReadyHonoursContext(t *testing.T) {
	t.Parallel()

	s := New(quietLog(), StaticProvider{}, &fakeAPI{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

// Package app wires the pointy client runtime: config, logging, the realtime transport,
// the session store, the HTTP API client, identity, the facilitator key store and the
// optional debug server.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"pointy/cmd/internal/errsink"
	"pointy/cmd/internal/keystore"
	"pointy/cmd/internal/pointing"
	"pointy/cmd/internal/profile"
	"pointy/cmd/internal/realtime"
	"pointy/cmd/internal/remote"
	v1 "pointy/shared/contracts/pointing/v1"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns every long-lived client component and their lifecycle.
type App struct {
	cfg Config
	log Logger

	errs      *errsink.Sink
	transport *realtime.WSTransport
	sessions  *pointing.Store
	api       *remote.Client
	profile   *profile.Store
	keys      keystore.Store

	dbPool *pgxpool.Pool
	debug  *http.Server

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New constructs a fully wired App. Nothing is dialed until Start; the database, when
// configured, is connected and migrated here.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log}
	a.errs = errsink.New(log)

	a.transport = realtime.NewWSTransport(log, realtime.TransportConfig{
		URL:          cfg.SocketURL,
		Origin:       cfg.Origin,
		DialTimeout:  cfg.WSDialTimeout,
		WriteTimeout: cfg.WSWriteTimeout,
		ReadLimit:    cfg.WSReadLimit,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
	}, realtime.Handlers{
		OnMessage: func(ev v1.Event) { a.sessions.Handle(ev) },
		OnError:   a.errs.Register,
		OnOpen:    a.resync,
	})
	a.sessions = pointing.NewStore(log, a.transport,
		pointing.WithErrorReporter(a.errs),
		pointing.WithHeartbeatInterval(cfg.HeartbeatInterval),
	)

	provider, err := newIdentityProvider(cfg)
	if err != nil {
		return nil, err
	}
	a.api = remote.NewClient(log, cfg.APIBaseURL,
		remote.CredentialFunc(func() string { return a.profile.Credential() }),
		remote.WithTimeout(cfg.HTTPTimeout),
	)
	a.profile = profile.New(log, provider, a.api, a.errs)

	if err := a.openKeyStore(ctx); err != nil {
		return nil, err
	}

	if cfg.DebugAddr != "" {
		mux := http.NewServeMux()
		registerHTTP(mux, log, a.transport, a.dbPool)
		a.debug = &http.Server{
			Addr:              cfg.DebugAddr,
			Handler:           WithRequestLogging(mux, log),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return a, nil
}

// resync re-registers the store on every reopened channel. It runs on the transport's
// run goroutine before the read loop resumes.
func (a *App) resync() {
	err := a.sessions.Resync(context.Background())
	if err != nil && !errors.Is(err, pointing.ErrClosed) {
		a.log.Info("app.resync.fail", "err", err)
		a.errs.Register(err)
	}
}

// Start launches the background goroutines: the transport run loop, heartbeats, identity
// initialization, the key recorder and the debug server. It returns immediately.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Subscribe before the socket can deliver anything.
	sub := a.sessions.Subscribe("")

	a.log.Info("app.start",
		"socket_url", a.cfg.SocketURL,
		"api_base_url", a.cfg.APIBaseURL,
		"keystore", a.keyStoreKind(),
		"debug_addr", a.cfg.DebugAddr,
	)

	a.goRun(func() { _ = a.transport.Run(ctx) })
	a.goRun(func() { a.sessions.Run(ctx) })
	a.goRun(func() {
		if err := a.profile.Initialize(ctx); err != nil {
			a.log.Info("profile.init.fail", "err", err)
			a.errs.Register(err)
		}
	})

	a.goRun(func() {
		defer sub.Close()
		recordFacilitatorKeys(ctx, a.log, sub.C(), a.keys)
	})

	if a.debug != nil {
		a.goRun(func() {
			a.log.Info("debug.start", "addr", a.debug.Addr)
			if err := a.debug.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("debug.fail", "err", err)
			}
		})
	}
}

// Close stops everything in dependency order: session store, transport, debug server,
// then storage. It is idempotent.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		if a.cancel != nil {
			a.cancel()
		}
		a.mu.Unlock()

		a.sessions.Close()
		_ = a.transport.Close()

		if a.debug != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.debug.Shutdown(ctx); err != nil {
				a.log.Info("debug.shutdown.fail", "err", err)
			}
			cancel()
		}

		a.wg.Wait()

		if a.keys != nil {
			_ = a.keys.Close()
		}
		if a.dbPool != nil {
			a.dbPool.Close()
		}
		a.log.Info("app.stopped")
	})
	return nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() Config { return a.cfg }

// Logger returns the app logger.
func (a *App) Logger() Logger { return a.log }

// Sessions returns the session store.
func (a *App) Sessions() *pointing.Store { return a.sessions }

// API returns the HTTP API client.
func (a *App) API() *remote.Client { return a.api }

// Profile returns the identity/profile store.
func (a *App) Profile() *profile.Store { return a.profile }

// Errors returns the pending-error sink.
func (a *App) Errors() *errsink.Sink { return a.errs }

// Keys returns the facilitator key store.
func (a *App) Keys() keystore.Store { return a.keys }

// Connected reports whether the realtime channel is currently open.
func (a *App) Connected() bool { return a.transport.IsOpen() }

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// openKeyStore picks Postgres when a database is configured, then the key file, then
// memory. The key file is sealed when a keystore secret is set.
func (a *App) openKeyStore(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		path := strings.TrimSpace(a.cfg.KeystorePath)
		if path == "" || path == KeystoreMemory {
			a.keys = keystore.NewInMemoryStore()
			return nil
		}
		var sealer *keystore.Sealer
		if strings.TrimSpace(a.cfg.KeystoreSecret) != "" {
			s, err := keystore.NewSealer(a.cfg.KeystoreSecret)
			if err != nil {
				return err
			}
			sealer = s
		}
		st, err := keystore.NewFileStore(path, sealer)
		if err != nil {
			return err
		}
		a.keys = st
		return nil
	}

	sealer, err := keystore.NewSealer(a.cfg.KeystoreSecret)
	if err != nil {
		return err
	}
	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return err
	}

	// The app owns the pool; PostgresStore.Close is a no-op.
	st, err := keystore.NewPostgresStore(pool, sealer)
	if err != nil {
		pool.Close()
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}
	a.dbPool = pool
	a.keys = st
	return nil
}

func (a *App) keyStoreKind() string {
	switch {
	case a.dbPool != nil:
		return "postgres"
	case a.cfg.DatabaseURL == "" && a.cfg.KeystorePath != "" && a.cfg.KeystorePath != KeystoreMemory:
		return "file"
	default:
		return "memory"
	}
}

// newIdentityProvider prefers a PASETO signing key, then a static token. With neither
// the client runs signed out.
func newIdentityProvider(cfg Config) (profile.IdentityProvider, error) {
	if cfg.PasetoV4SecretKeyHex != "" {
		p, err := profile.NewPasetoProvider(profile.PasetoConfig{
			SecretKeyHex: cfg.PasetoV4SecretKeyHex,
			Issuer:       cfg.AuthIssuer,
			UserID:       cfg.AuthUserID,
			TTL:          cfg.AuthTokenTTL,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return profile.StaticProvider{Token: cfg.AuthToken, UserID: cfg.AuthUserID}, nil
}

package profile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

var (
	// ErrConfig reports an unusable provider configuration.
	ErrConfig = errors.New("profile: invalid identity provider config")
	// ErrInvalidToken reports a token that failed verification.
	ErrInvalidToken = errors.New("profile: invalid token")
)

const (
	defaultTokenTTL = 15 * time.Minute
	defaultIssuer   = "pointy"
)

// PasetoConfig configures the development identity provider.
type PasetoConfig struct {
	// SecretKeyHex is a hex-encoded Ed25519 secret key for PASETO v4.public.
	SecretKeyHex string
	Issuer       string
	UserID       string
	Name         string
	TTL          time.Duration
}

// PasetoProvider signs in a configured user by minting PASETO v4.public bearer tokens.
// Tokens are re-minted at half their lifetime and listeners are told about the new one.
type PasetoProvider struct {
	cfg    PasetoConfig
	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
	now    func() time.Time

	mu      sync.Mutex
	current IdentityUser
	exp     time.Time
}

// NewPasetoProvider validates cfg and loads the signing key.
func NewPasetoProvider(cfg PasetoConfig) (*PasetoProvider, error) {
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	if cfg.UserID == "" {
		return nil, ErrConfig
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTokenTTL
	}
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(strings.TrimSpace(cfg.SecretKeyHex))
	if err != nil {
		return nil, ErrConfig
	}
	return &PasetoProvider{
		cfg:    cfg,
		secret: secret,
		public: secret.Public(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// GenerateKeyHex returns a fresh Ed25519 secret key for SecretKeyHex.
func GenerateKeyHex() string {
	return paseto.NewV4AsymmetricSecretKey().ExportHex()
}

// PublicKeyHex returns the verification key servers need to accept minted tokens.
func (p *PasetoProvider) PublicKeyHex() string {
	return p.public.ExportHex()
}

func (p *PasetoProvider) IsSignedIn(context.Context) (bool, error) {
	return true, nil
}

func (p *PasetoProvider) CurrentUser(context.Context) (IdentityUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.current.Token == "" || !now.Before(p.exp.Add(-p.cfg.TTL/2)) {
		p.mintLocked(now)
	}
	return p.current, nil
}

// Listen re-mints the token every TTL/2 and calls fn with each new identity.
func (p *PasetoProvider) Listen(ctx context.Context, fn func(IdentityUser)) {
	if fn == nil {
		return
	}
	go func() {
		t := time.NewTicker(p.cfg.TTL / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.mu.Lock()
				p.mintLocked(p.now())
				u := p.current
				p.mu.Unlock()
				fn(u)
			}
		}
	}()
}

// Verify checks a token minted by this provider and returns its user id.
func (p *PasetoProvider) Verify(token string, now time.Time) (string, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.IssuedBy(p.cfg.Issuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(now))

	parsed, err := parser.ParseV4Public(p.public, token, nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return "", ErrInvalidToken
	}
	return uid, nil
}

func (p *PasetoProvider) mintLocked(now time.Time) {
	exp := now.Add(p.cfg.TTL)

	tok := paseto.NewToken()
	tok.SetIssuer(p.cfg.Issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	_ = tok.Set("uid", p.cfg.UserID)
	if p.cfg.Name != "" {
		_ = tok.Set("name", p.cfg.Name)
	}

	p.current = IdentityUser{
		SignedIn: true,
		Token:    tok.V4Sign(p.secret, nil),
		UserID:   p.cfg.UserID,
		Name:     p.cfg.Name,
	}
	p.exp = exp
}

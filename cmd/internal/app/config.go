package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the optional YAML config file.
const EnvConfigFile = EnvPrefix + "CONFIG_FILE"

// KeystoreMemory as keystore_path keeps facilitator keys in process memory only.
const KeystoreMemory = ":memory:"

// Config contains all runtime configuration.
//
// Values come from, in increasing precedence: built-in defaults, the YAML file,
// POINTY_* environment variables.
type Config struct {
	SocketURL  string `yaml:"socket_url"`
	APIBaseURL string `yaml:"api_base_url"`
	Origin     string `yaml:"origin"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WSDialTimeout     time.Duration `yaml:"ws_dial_timeout"`
	WSWriteTimeout    time.Duration `yaml:"ws_write_timeout"`
	WSReadLimit       int64         `yaml:"ws_read_limit"`
	ReconnectMin      time.Duration `yaml:"reconnect_min"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`

	// Empty disables the debug server.
	DebugAddr string `yaml:"debug_addr"`

	DatabaseURL    string `yaml:"database_url"`
	DBMaxConns     int32  `yaml:"db_max_conns"`
	DBMinConns     int32  `yaml:"db_min_conns"`
	KeystoreSecret string `yaml:"keystore_secret"`

	// Used when no database is configured. KeystoreMemory disables persistence.
	KeystorePath string `yaml:"keystore_path"`

	// Identity. A PASETO key takes precedence over a static token.
	AuthToken            string        `yaml:"auth_token"`
	PasetoV4SecretKeyHex string        `yaml:"paseto_v4_secret_key_hex"`
	AuthUserID           string        `yaml:"auth_user_id"`
	AuthIssuer           string        `yaml:"auth_issuer"`
	AuthTokenTTL         time.Duration `yaml:"auth_token_ttl"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SocketURL:  "ws://127.0.0.1:8080/ws",
		APIBaseURL: "http://127.0.0.1:8080",

		LogLevel:  "info",
		LogFormat: "json",

		HeartbeatInterval: 30 * time.Second,
		WSDialTimeout:     10 * time.Second,
		WSWriteTimeout:    5 * time.Second,
		WSReadLimit:       64 << 10,
		ReconnectMin:      500 * time.Millisecond,
		ReconnectMax:      30 * time.Second,
		HTTPTimeout:       15 * time.Second,

		DBMaxConns: 4,
		DBMinConns: 0,

		KeystorePath: defaultKeystorePath(),

		AuthIssuer:   "pointy",
		AuthTokenTTL: 15 * time.Minute,
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path (or $POINTY_CONFIG_FILE
// when path is empty) and the environment, then validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigFile))
	}
	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays POINTY_* variables; current values act as the defaults.
func applyEnv(c *Config) error {
	env := newEnvOverlay()

	env.String("SOCKET_URL", &c.SocketURL)
	env.String("API_BASE_URL", &c.APIBaseURL)
	env.String("ORIGIN", &c.Origin)

	env.String("LOG_LEVEL", &c.LogLevel)
	env.String("LOG_FORMAT", &c.LogFormat)

	env.Duration("HEARTBEAT_INTERVAL", &c.HeartbeatInterval)
	env.Duration("WS_DIAL_TIMEOUT", &c.WSDialTimeout)
	env.Duration("WS_WRITE_TIMEOUT", &c.WSWriteTimeout)
	env.Int64("WS_READ_LIMIT", &c.WSReadLimit)
	env.Duration("RECONNECT_MIN", &c.ReconnectMin)
	env.Duration("RECONNECT_MAX", &c.ReconnectMax)
	env.Duration("HTTP_TIMEOUT", &c.HTTPTimeout)

	env.String("DEBUG_ADDR", &c.DebugAddr)

	env.String("DATABASE_URL", &c.DatabaseURL)
	env.Int32("DB_MAX_CONNS", &c.DBMaxConns)
	env.Int32("DB_MIN_CONNS", &c.DBMinConns)
	env.String("KEYSTORE_SECRET", &c.KeystoreSecret)
	env.String("KEYSTORE_PATH", &c.KeystorePath)

	env.String("AUTH_TOKEN", &c.AuthToken)
	env.String("PASETO_V4_SECRET_KEY_HEX", &c.PasetoV4SecretKeyHex)
	env.String("AUTH_USER_ID", &c.AuthUserID)
	env.String("AUTH_ISSUER", &c.AuthIssuer)
	env.Duration("AUTH_TOKEN_TTL", &c.AuthTokenTTL)

	return env.Err()
}

// defaultKeystorePath is facilitator-keys.yaml in the user's config directory, or
// memory when there is none.
func defaultKeystorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return KeystoreMemory
	}
	return filepath.Join(dir, "pointy", "facilitator-keys.yaml")
}

// Validate rejects configurations the app cannot start with.
func (c Config) Validate() error {
	var errs []error

	if err := checkURL(c.SocketURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("socket_url: %w", err))
	}
	if err := checkURL(c.APIBaseURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("api_base_url: %w", err))
	}
	if c.ReconnectMax > 0 && c.ReconnectMin > c.ReconnectMax {
		errs = append(errs, errors.New("reconnect_min must not exceed reconnect_max"))
	}
	if c.DBMinConns > c.DBMaxConns && c.DBMaxConns > 0 {
		errs = append(errs, errors.New("db_min_conns must not exceed db_max_conns"))
	}
	if c.DatabaseURL != "" && strings.TrimSpace(c.KeystoreSecret) == "" {
		errs = append(errs, errors.New("keystore_secret is required when database_url is set"))
	}
	if c.PasetoV4SecretKeyHex != "" && strings.TrimSpace(c.AuthUserID) == "" {
		errs = append(errs, errors.New("auth_user_id is required with paseto_v4_secret_key_hex"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want json or pretty", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%q: scheme must be one of %s", raw, strings.Join(schemes, ", "))
}

package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearPointyEnv blanks every POINTY_* variable for the duration of the test.
func clearPointyEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "POINTY_") {
			t.Setenv(k, "")
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearPointyEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("HeartbeatInterval=%v want=30s", cfg.HeartbeatInterval)
	}
	if cfg.SocketURL != DefaultConfig().SocketURL {
		t.Fatalf("SocketURL=%q", cfg.SocketURL)
	}
	if cfg.DebugAddr != "" || cfg.DatabaseURL != "" {
		t.Fatalf("optional features must default off: %+v", cfg)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pointy.yaml")
	body := strings.Join([]string{
		"socket_url: wss://poker.example.com/ws",
		"api_base_url: https://poker.example.com/api",
		"heartbeat_interval: 10s",
		"ws_read_limit: 4096",
		"log_format: pretty",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	clearPointyEnv(t)
	t.Setenv("POINTY_HEARTBEAT_INTERVAL", "45s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SocketURL != "wss://poker.example.com/ws" {
		t.Fatalf("SocketURL=%q want file value", cfg.SocketURL)
	}
	if cfg.HeartbeatInterval != 45*time.Second {
		t.Fatalf("HeartbeatInterval=%v want env value 45s", cfg.HeartbeatInterval)
	}
	if cfg.WSReadLimit != 4096 {
		t.Fatalf("WSReadLimit=%d want=4096", cfg.WSReadLimit)
	}
	if cfg.LogFormat != "pretty" {
		t.Fatalf("LogFormat=%q", cfg.LogFormat)
	}
	// Untouched keys keep their defaults.
	if cfg.ReconnectMax != DefaultConfig().ReconnectMax {
		t.Fatalf("ReconnectMax=%v", cfg.ReconnectMax)
	}
}

func TestLoadConfig_FileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pointy.yaml")
	if err := os.WriteFile(path, []byte("debug_addr: 127.0.0.1:9099\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	clearPointyEnv(t)
	t.Setenv(EnvConfigFile, path)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DebugAddr != "127.0.0.1:9099" {
		t.Fatalf("DebugAddr=%q", cfg.DebugAddr)
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	clearPointyEnv(t)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("heartbeat_interval: [nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults ok", mutate: func(*Config) {}},
		{name: "socket scheme", mutate: func(c *Config) { c.SocketURL = "http://x/ws" }, wantErr: "socket_url"},
		{name: "api scheme", mutate: func(c *Config) { c.APIBaseURL = "ws://x" }, wantErr: "api_base_url"},
		{name: "api host", mutate: func(c *Config) { c.APIBaseURL = "http://" }, wantErr: "api_base_url"},
		{name: "reconnect order", mutate: func(c *Config) { c.ReconnectMin = time.Minute; c.ReconnectMax = time.Second }, wantErr: "reconnect_min"},
		{name: "db without secret", mutate: func(c *Config) { c.DatabaseURL = "postgres://x/y" }, wantErr: "keystore_secret"},
		{name: "db with secret", mutate: func(c *Config) { c.DatabaseURL = "postgres://x/y"; c.KeystoreSecret = "s3cret" }},
		{name: "paseto without user", mutate: func(c *Config) { c.PasetoV4SecretKeyHex = "ab" }, wantErr: "auth_user_id"},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate()=%v want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate()=%v want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Parallel()

	vars := map[string]string{
		"POINTY_NAME":      "  pointy ",
		"POINTY_BLANK":     "   ",
		"POINTY_INT64":     "2048",
		"POINTY_NEG_INT32": "-3",
		"POINTY_DUR":       "bogus",
		"POINTY_GOOD_DUR":  "45s",
		"NAME":             "unprefixed",
	}
	env := &envOverlay{lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}

	name, blank := "default", "default"
	var size int64 = 1
	var conns int32 = 2
	dur, goodDur := time.Second, time.Second
	unset := "keep"

	env.String("NAME", &name)
	env.String("BLANK", &blank)
	env.String("UNSET", &unset)
	env.Int64("INT64", &size)
	env.Int32("NEG_INT32", &conns)
	env.Duration("DUR", &dur)
	env.Duration("GOOD_DUR", &goodDur)

	if name != "pointy" || blank != "default" || unset != "keep" {
		t.Fatalf("strings: name=%q blank=%q unset=%q", name, blank, unset)
	}
	if size != 2048 || goodDur != 45*time.Second {
		t.Fatalf("size=%d goodDur=%v", size, goodDur)
	}
	if conns != 2 || dur != time.Second {
		t.Fatalf("malformed values must not overwrite: conns=%d dur=%v", conns, dur)
	}

	err := env.Err()
	if err == nil {
		t.Fatalf("expected errors for malformed values")
	}
	for _, want := range []string{"POINTY_NEG_INT32", "POINTY_DUR"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("err=%v missing %s", err, want)
		}
	}
}

func TestLoadConfig_RejectsMalformedEnv(t *testing.T) {
	clearPointyEnv(t)
	t.Setenv("POINTY_RECONNECT_MAX", "soon")

	_, err := LoadConfig("")
	if err == nil || !strings.Contains(err.Error(), "POINTY_RECONNECT_MAX") {
		t.Fatalf("LoadConfig err=%v want POINTY_RECONNECT_MAX error", err)
	}
}

func TestLoadConfig_KeystorePath(t *testing.T) {
	clearPointyEnv(t)
	t.Setenv("POINTY_KEYSTORE_PATH", KeystoreMemory)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.KeystorePath != KeystoreMemory {
		t.Fatalf("KeystorePath=%q want=%q", cfg.KeystorePath, KeystoreMemory)
	}
	if def := DefaultConfig().KeystorePath; def != KeystoreMemory && !strings.HasSuffix(def, "facilitator-keys.yaml") {
		t.Fatalf("default KeystorePath=%q", def)
	}
}

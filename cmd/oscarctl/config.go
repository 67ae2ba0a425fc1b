package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/oscarctl/internal/auth"
	"github.com/danmuck/oscarctl/internal/oscar"
	"github.com/danmuck/oscarctl/internal/store"
)

// oscarctl config.toml key mapping to runtime settings.
type fileConfig struct {
	AuthAddr          string   `toml:"auth_addr"`
	BossAddr          string   `toml:"boss_addr"`
	BossAdvertiseAddr string   `toml:"boss_advertise_addr"`
	AdminAddr         string   `toml:"admin_addr"`
	AdminToken        string   `toml:"admin_token"`
	DBPath            string   `toml:"db_path"`
	AccountsFile      string   `toml:"accounts_file"`
	CookieTTL         string   `toml:"cookie_ttl"`
	PurgeInterval     string   `toml:"purge_interval"`
	IdleTimeout       string   `toml:"idle_timeout"`
	WriteTimeout      string   `toml:"write_timeout"`
	PasswordChangeURL string   `toml:"password_change_url"`
	ErrorURL          string   `toml:"error_url"`
	CORSOrigins       []string `toml:"cors_origins"`
	TLSCertFile       string   `toml:"tls_cert_file"`
	TLSKeyFile        string   `toml:"tls_key_file"`
}

type serverConfig struct {
	AuthAddr      string
	BossAddr      string
	AdminAddr     string
	AdminToken    string
	DBPath        string
	AccountsFile  string
	CookieTTL     time.Duration
	PurgeInterval time.Duration
	Conn          oscar.ConnConfig
	TLS           oscar.TLSConfig
	Auth          auth.Config
	CORSOrigins   []string
}

func defaultServerConfig() serverConfig {
	def := oscar.DefaultServerConfig()
	return serverConfig{
		AuthAddr:      ":5190",
		BossAddr:      ":5191",
		AdminAddr:     "127.0.0.1:8090",
		DBPath:        "oscar.db",
		CookieTTL:     store.DefaultCookieTTL,
		PurgeInterval: time.Minute,
		Conn:          def.Conn,
		Auth:          auth.DefaultConfig(),
	}
}

func (c serverConfig) authServer() oscar.ServerConfig {
	return oscar.ServerConfig{ListenAddr: c.AuthAddr, Conn: c.Conn, TLS: c.TLS}
}

func (c serverConfig) bossServer() oscar.ServerConfig {
	return oscar.ServerConfig{ListenAddr: c.BossAddr, Conn: c.Conn, TLS: c.TLS}
}

// loadServerConfig reads path and overlays the defined keys on the defaults.
// An empty path yields the defaults.
func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverConfig{}, fmt.Errorf("load oscarctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return serverConfig{}, fmt.Errorf("load oscarctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("auth_addr") {
		cfg.AuthAddr = strings.TrimSpace(raw.AuthAddr)
	}
	if meta.IsDefined("boss_addr") {
		cfg.BossAddr = strings.TrimSpace(raw.BossAddr)
	}
	if meta.IsDefined("boss_advertise_addr") {
		cfg.Auth.BossAddr = strings.TrimSpace(raw.BossAdvertiseAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}
	if meta.IsDefined("accounts_file") {
		cfg.AccountsFile = strings.TrimSpace(raw.AccountsFile)
	}
	if meta.IsDefined("password_change_url") {
		cfg.Auth.PasswordChangeURL = strings.TrimSpace(raw.PasswordChangeURL)
	}
	if meta.IsDefined("error_url") {
		cfg.Auth.ErrorURL = strings.TrimSpace(raw.ErrorURL)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"cookie_ttl", raw.CookieTTL, &cfg.CookieTTL},
		{"purge_interval", raw.PurgeInterval, &cfg.PurgeInterval},
		{"idle_timeout", raw.IdleTimeout, &cfg.Conn.IdleTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Conn.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return serverConfig{}, fmt.Errorf("load oscarctl config: %s: %w", d.key, err)
		}
		if v <= 0 {
			return serverConfig{}, fmt.Errorf("load oscarctl config: %s must be positive", d.key)
		}
		*d.dst = v
	}

	if err := cfg.validate(); err != nil {
		return serverConfig{}, fmt.Errorf("load oscarctl config: %w", err)
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	if c.AuthAddr == "" || c.BossAddr == "" {
		return fmt.Errorf("auth_addr and boss_addr are required")
	}
	if c.Auth.BossAddr == "" {
		return fmt.Errorf("boss_advertise_addr is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

// Package config loads artisand and artisanctl settings from YAML with
// ARTISAN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-artisan/server"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"

	EnvPrefix = "ARTISAN_"
)

// Config holds every setting for both binaries.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	SigningKey string           `yaml:"signing_key"`
	Issuer     string           `yaml:"issuer"`
	AccessTTL  time.Duration    `yaml:"access_ttl"`
	RefreshTTL time.Duration    `yaml:"refresh_ttl"`
	LoginRate  int              `yaml:"login_attempts_per_minute"`
	LoginBurst int              `yaml:"login_burst"`
	Admins     []server.Account `yaml:"admins"`
}

type StoreConfig struct {
	Driver        string        `yaml:"driver"`
	DSN           string        `yaml:"dsn"`
	Seed          bool          `yaml:"seed"`
	Latency       time.Duration `yaml:"latency"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
}

type ClientConfig struct {
	BaseURL         string        `yaml:"base_url"`
	CredentialsPath string        `yaml:"credentials_path"`
	Timeout         time.Duration `yaml:"timeout"`
	RefreshTimeout  time.Duration `yaml:"refresh_timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a config that runs the demo server on localhost.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:     "go-artisan",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			LoginRate:  5,
			LoginBurst: server.DefaultLoginBurst,
		},
		Store: StoreConfig{
			Driver:  StoreMemory,
			Seed:    true,
			Latency: 300 * time.Millisecond,
		},
		Client: ClientConfig{
			BaseURL:         "http://localhost:8080",
			CredentialsPath: defaultCredentialsPath(),
			Timeout:         30 * time.Second,
			RefreshTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ARTISAN_* variables resolved by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("LISTEN", &c.Server.Listen)
	str("SIGNING_KEY", &c.Auth.SigningKey)
	str("ISSUER", &c.Auth.Issuer)
	str("STORE_DRIVER", &c.Store.Driver)
	str("DB_DSN", &c.Store.DSN)
	str("BASE_URL", &c.Client.BaseURL)
	str("CREDENTIALS_PATH", &c.Client.CredentialsPath)
	str("LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup(EnvPrefix + "SEED"); ok && v != "" {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSEED: %w", EnvPrefix, err)
		}
		c.Store.Seed = seed
	}

	for name, dst := range map[string]*time.Duration{
		"ACCESS_TTL":     &c.Auth.AccessTTL,
		"REFRESH_TTL":    &c.Auth.RefreshTTL,
		"STORE_LATENCY":  &c.Store.Latency,
		"VERIFY_TIMEOUT": &c.Store.VerifyTimeout,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}
	if err := num("LOGIN_RATE", &c.Auth.LoginRate); err != nil {
		return err
	}
	if err := num("LOGIN_BURST", &c.Auth.LoginBurst); err != nil {
		return err
	}

	// A single admin can be provided entirely from the environment.
	var admin server.Account
	str("ADMIN_EMAIL", &admin.Email)
	str("ADMIN_PASSWORD_HASH", &admin.PasswordHash)
	if admin.Email != "" && admin.PasswordHash != "" {
		admin.ID = admin.Email
		str("ADMIN_ID", &admin.ID)
		admin.Role = "admin"
		c.Auth.Admins = append(c.Auth.Admins, admin)
	}
	return nil
}

// ValidateServer checks the settings artisand needs.
func (c *Config) ValidateServer() error {
	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Auth.Issuer, validation.Required),
		validation.Field(&c.Auth.AccessTTL, validation.Required),
		validation.Field(&c.Auth.RefreshTTL, validation.Required, validation.Min(c.Auth.AccessTTL)),
		validation.Field(&c.Auth.LoginRate, validation.Min(1)),
		validation.Field(&c.Auth.Admins, validation.By(validateAdmins)),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if err := validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Driver, validation.Required, validation.In(StoreMemory, StoreSQLite)),
	); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.Store.Driver == StoreSQLite && c.Store.DSN == "" {
		return errors.New("store: dsn is required for the sqlite driver")
	}
	return nil
}

// ValidateClient checks the settings artisanctl needs.
func (c *Config) ValidateClient() error {
	return validation.ValidateStruct(&c.Client,
		validation.Field(&c.Client.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Client.CredentialsPath, validation.Required),
	)
}

// LoginLimit is the configured attempts per minute as a token rate.
func (c AuthConfig) LoginLimit() float64 {
	return float64(c.LoginRate) / 60.0
}

func validateAdmins(value any) error {
	admins, _ := value.([]server.Account)
	for i, admin := range admins {
		if strings.TrimSpace(admin.Email) == "" {
			return fmt.Errorf("admin %d: email is required", i)
		}
		if !strings.HasPrefix(admin.PasswordHash, "$2") {
			return fmt.Errorf("admin %s: password_hash must be a bcrypt hash", admin.Email)
		}
	}
	return nil
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "artisanctl.db"
	}
	return filepath.Join(dir, "artisanctl", "credentials.db")
}

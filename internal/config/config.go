package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const insecureSecret = "supersecretkey"

type Config struct {
	Addr           string        `yaml:"addr"`
	SessionSecret  string        `yaml:"session_secret"`
	APITimeout     time.Duration `yaml:"timeout"`
	DatabasePath   string        `yaml:"database_path"`
	TokenDuration  time.Duration `yaml:"token_duration"`
	MigrateOnStart bool          `yaml:"migrate_on_start"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	Store          StoreConfig   `yaml:"store"`
	Admin          AdminConfig   `yaml:"admin"`
}

type StoreConfig struct {
	EditWindow   time.Duration `yaml:"edit_window"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// AdminConfig is the single fixed credential pair accepted by the dashboard
// login.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadConfig builds the configuration from defaults, the environment (a
// .env file in the working directory is honored) and, when path is set, a
// YAML file whose values win.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Addr:           getEnv("IISA_ADDR", ":8080"),
		SessionSecret:  getEnv("IISA_SESSION_SECRET", insecureSecret),
		APITimeout:     getEnvDuration("IISA_TIMEOUT", 15*time.Second),
		DatabasePath:   getEnv("IISA_DATABASE_PATH", "iisa.db"),
		TokenDuration:  getEnvDuration("IISA_TOKEN_DURATION", 8*time.Hour),
		MigrateOnStart: getEnvBool("IISA_MIGRATE_ON_START", true),
		SecureCookies:  getEnvBool("IISA_SECURE_COOKIES", false),
		Store: StoreConfig{
			EditWindow:   getEnvDuration("IISA_EDIT_WINDOW", 72*time.Hour),
			SyncInterval: getEnvDuration("IISA_SYNC_INTERVAL", 5*time.Second),
		},
		Admin: AdminConfig{
			Username: getEnv("IISA_ADMIN_USERNAME", "admin"),
			Password: getEnv("IISA_ADMIN_PASSWORD", "1234"),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with. The default
// session secret is accepted only when IISA_ENV=development.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path must not be empty")
	}
	if c.SessionSecret == "" {
		return errors.New("session_secret must not be empty")
	}
	if c.SessionSecret == insecureSecret && os.Getenv("IISA_ENV") != "development" {
		return errors.New("session_secret uses the insecure default; set IISA_SESSION_SECRET or IISA_ENV=development")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.APITimeout)
	}
	if c.TokenDuration <= 0 {
		return fmt.Errorf("token_duration must be positive, got %v", c.TokenDuration)
	}
	if c.Store.EditWindow <= 0 {
		return fmt.Errorf("store.edit_window must be positive, got %v", c.Store.EditWindow)
	}
	if c.Store.SyncInterval <= 0 {
		return fmt.Errorf("store.sync_interval must be positive, got %v", c.Store.SyncInterval)
	}
	if c.Admin.Username == "" || c.Admin.Password == "" {
		return errors.New("admin.username and admin.password must be set")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the root configuration for the companion client and the
// development stub server.
type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	API       APISettings       `mapstructure:"api"`
	Session   SessionSettings   `mapstructure:"session"`
	Keystore  KeystoreSettings  `mapstructure:"keystore"`
	DevServer DevServerSettings `mapstructure:"devserver"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// APISettings locates the platform auth API.
type APISettings struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionSettings bounds the session controller's asynchronous operations.
type SessionSettings struct {
	// BootstrapTimeout caps the startup session check; exceeding it degrades
	// to the unauthenticated flow instead of hanging the splash screen.
	BootstrapTimeout time.Duration `mapstructure:"bootstrap_timeout"`
	// OperationTimeout caps login/register/logout/refresh calls.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// RefreshLeeway refreshes the access token when it expires within this window.
	RefreshLeeway time.Duration `mapstructure:"refresh_leeway"`
}

// KeystoreSettings locates the local encrypted token store.
type KeystoreSettings struct {
	Path       string `mapstructure:"path"`
	SecretPath string `mapstructure:"secret_path"`
}

// DevServerSettings configures the local stub auth server.
type DevServerSettings struct {
	Host                     string        `mapstructure:"host"`
	Port                     int           `mapstructure:"port"`
	AccessTokenTTL           time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL          time.Duration `mapstructure:"refresh_token_ttl"`
	SigningSecret            string        `mapstructure:"signing_secret"`
	RequireEmailVerification bool          `mapstructure:"require_email_verification"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("FIGRCLUB")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"api.base_url",
		"api.timeout",
		"session.bootstrap_timeout",
		"session.operation_timeout",
		"session.refresh_leeway",
		"keystore.path",
		"keystore.secret_path",
		"devserver.host",
		"devserver.port",
		"devserver.access_token_ttl",
		"devserver.refresh_token_ttl",
		"devserver.signing_secret",
		"devserver.require_email_verification",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Session.BootstrapTimeout <= 0 {
		return fmt.Errorf("session.bootstrap_timeout must be positive")
	}
	if c.Session.OperationTimeout <= 0 {
		return fmt.Errorf("session.operation_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "figrclub-companion")
	v.SetDefault("app.env", "development")

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("session.bootstrap_timeout", "5s")
	v.SetDefault("session.operation_timeout", "15s")
	v.SetDefault("session.refresh_leeway", "2m")

	v.SetDefault("keystore.path", "./figrclub.db")
	v.SetDefault("keystore.secret_path", "./figrclub.secret")

	v.SetDefault("devserver.host", "0.0.0.0")
	v.SetDefault("devserver.port", 8080)
	v.SetDefault("devserver.access_token_ttl", "15m")
	v.SetDefault("devserver.refresh_token_ttl", "168h")
	v.SetDefault("devserver.signing_secret", "")
	v.SetDefault("devserver.require_email_verification", false)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "FIGRCLUB_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

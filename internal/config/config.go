package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	RedisChannel      string        `mapstructure:"REDIS_CHANNEL"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL      time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	GoogleClientID    string        `mapstructure:"GOOGLE_CLIENT_ID"`
	MicrosoftClientID string        `mapstructure:"MICROSOFT_CLIENT_ID"`
	AppleClientID     string        `mapstructure:"APPLE_CLIENT_ID"`
	VerifyURL         string        `mapstructure:"VERIFY_URL"`
	AIAPIKey          string        `mapstructure:"AI_API_KEY"`
	AIBaseURL         string        `mapstructure:"AI_BASE_URL"`
	AIModel           string        `mapstructure:"AI_MODEL"`
	AITimeout         time.Duration `mapstructure:"AI_TIMEOUT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	UploadBodyLimit   string        `mapstructure:"UPLOAD_BODY_LIMIT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled        bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile       string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile        string        `mapstructure:"TLS_KEY_FILE"`
}

// MinSigningKeyLen is the shortest accepted AUTH_SIGNING_KEY outside
// development.
const MinSigningKeyLen = 32

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "REDIS_CHANNEL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_TOKEN_TTL",
	"GOOGLE_CLIENT_ID", "MICROSOFT_CLIENT_ID", "APPLE_CLIENT_ID", "VERIFY_URL",
	"AI_API_KEY", "AI_BASE_URL", "AI_MODEL", "AI_TIMEOUT",
	"CORS_ORIGINS", "BODY_LIMIT", "UPLOAD_BODY_LIMIT", "REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_CHANNEL", "woundcare:changes")
	v.SetDefault("AUTH_ISSUER", "woundcare")
	v.SetDefault("AUTH_TOKEN_TTL", "1h")
	v.SetDefault("VERIFY_URL", "http://localhost:3000/verify-email")
	v.SetDefault("AI_TIMEOUT", "60s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_BODY_LIMIT", "12M")
	v.SetDefault("REQUEST_TIMEOUT", "90s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AIEnabled reports whether a model API key is configured. Without one the
// AI flows answer with a model-unavailable error.
func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}

// SocialClientIDs maps identity provider ids to the configured OAuth client
// ids. Providers without a client id are left out.
func (c *Config) SocialClientIDs() map[string]string {
	out := make(map[string]string)
	for provider, id := range map[string]string{
		"google.com":    c.GoogleClientID,
		"microsoft.com": c.MicrosoftClientID,
		"apple.com":     c.AppleClientID,
	} {
		if id != "" {
			out[provider] = id
		}
	}
	return out
}

// Validate checks that the configuration is safe to run. Outside
// development a signing key of at least MinSigningKeyLen bytes is required.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.IsDev() && len(c.AuthSigningKey) < MinSigningKeyLen {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes when ENV=%q", MinSigningKeyLen, c.Env)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.AuthTokenTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	JWTIssuer         string        `mapstructure:"JWT_ISSUER"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	ModelServerURL    string        `mapstructure:"MODEL_SERVER_URL"`
	ModelManifest     string        `mapstructure:"MODEL_MANIFEST"`
	PredictionTimeout time.Duration `mapstructure:"PREDICTION_TIMEOUT"`
	PredictionRetries int           `mapstructure:"PREDICTION_RETRIES"`
	NotifyTimeout     time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	SendGridAPIKey    string        `mapstructure:"SENDGRID_API_KEY"`
	NotifyFromEmail   string        `mapstructure:"NOTIFY_FROM_EMAIL"`
	NotifyFromName    string        `mapstructure:"NOTIFY_FROM_NAME"`
	TLSEnabled        bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile       string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile        string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"JWT_SECRET", "JWT_ISSUER", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"MODEL_SERVER_URL", "MODEL_MANIFEST", "PREDICTION_TIMEOUT", "PREDICTION_RETRIES",
	"NOTIFY_TIMEOUT", "SENDGRID_API_KEY", "NOTIFY_FROM_EMAIL", "NOTIFY_FROM_NAME",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first; variables already set in the process win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_ISSUER", "healthguard")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "12M")
	v.SetDefault("MODEL_SERVER_URL", "http://localhost:8501")
	v.SetDefault("PREDICTION_TIMEOUT", "10s")
	v.SetDefault("PREDICTION_RETRIES", 1)
	v.SetDefault("NOTIFY_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_FROM_EMAIL", "no-reply@healthguard.local")
	v.SetDefault("NOTIFY_FROM_NAME", "HealthGuard")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// config.yaml is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(v.GetStringSlice("CORS_ORIGINS"), ","))

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

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes outside development, got %d", len(c.JWTSecret))
	}
	if c.PredictionTimeout <= 0 {
		return fmt.Errorf("PREDICTION_TIMEOUT must be positive, got %s", c.PredictionTimeout)
	}
	if c.PredictionRetries < 0 || c.PredictionRetries > 1 {
		return fmt.Errorf("PREDICTION_RETRIES must be 0 or 1, got %d", c.PredictionRetries)
	}
	if c.IsProduction() && c.SendGridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required in production")
	}

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

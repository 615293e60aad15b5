package gateway

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the gateway facade. Secrets come
// from the environment rather than the node's TOML file.
type Config struct {
	ListenAddress     string
	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string
	DatabasePath      string
	RequestsPerMinute float64
	Burst             int
	ClockSkew         time.Duration
}

// LoadConfigFromEnv builds a configuration using environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:     envOr("NOVALINK_GATEWAY_LISTEN", "127.0.0.1:8680"),
		JWTSecret:         strings.TrimSpace(os.Getenv("NOVALINK_GATEWAY_JWT_SECRET")),
		JWTIssuer:         envOr("NOVALINK_GATEWAY_JWT_ISSUER", "novalink"),
		JWTAudience:       envOr("NOVALINK_GATEWAY_JWT_AUDIENCE", "novalink-gateway"),
		DatabasePath:      envOr("NOVALINK_GATEWAY_DB", "gateway.db"),
		RequestsPerMinute: 120,
		Burst:             20,
		ClockSkew:         2 * time.Minute,
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("gateway: NOVALINK_GATEWAY_JWT_SECRET required")
	}
	if raw := strings.TrimSpace(os.Getenv("NOVALINK_GATEWAY_RPM")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			return Config{}, fmt.Errorf("gateway: invalid NOVALINK_GATEWAY_RPM %q", raw)
		}
		cfg.RequestsPerMinute = value
	}
	if raw := strings.TrimSpace(os.Getenv("NOVALINK_GATEWAY_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return Config{}, fmt.Errorf("gateway: invalid NOVALINK_GATEWAY_BURST %q", raw)
		}
		cfg.Burst = value
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"time"
)

// SessionTokenConfig configures verification of HS256 session tokens issued by the
// login service.
type SessionTokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string

	ClockSkew time.Duration
}

func LoadSessionTokenConfigFromEnv() (SessionTokenConfig, error) {
	secret := os.Getenv("SESSION_TOKEN_SECRET")
	if secret == "" {
		return SessionTokenConfig{}, fmt.Errorf("missing required env var: SESSION_TOKEN_SECRET")
	}
	if len(secret) < 32 {
		return SessionTokenConfig{}, fmt.Errorf("SESSION_TOKEN_SECRET must be at least 32 bytes")
	}

	cfg := SessionTokenConfig{
		Secret:    []byte(secret),
		Issuer:    getenv("SESSION_TOKEN_ISSUER", "member-login"),
		Audience:  getenv("SESSION_TOKEN_AUDIENCE", "member-api"),
		ClockSkew: 30 * time.Second,
	}
	if v := os.Getenv("SESSION_TOKEN_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return SessionTokenConfig{}, fmt.Errorf("SESSION_TOKEN_CLOCK_SKEW must be a duration (e.g. 30s): %w", err)
		}
		cfg.ClockSkew = d
	}
	return cfg, nil
}

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr             string
	DBPath           string
	JWTSecret        string
	TokenTTL         time.Duration
	ChallengeTTL     time.Duration
	DemoClientID     string
	DemoClientSecret string
	// RequireChallenge forces a solved math challenge on every token grant.
	// When disabled, grant_type=client_credentials may skip the challenge.
	RequireChallenge bool
}

func Load() Config {
	addr := envString("VIBECHECK_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	return Config{
		Addr:             addr,
		DBPath:           envString("VIBECHECK_DB", "vibechecker.db"),
		JWTSecret:        envString("VIBECHECK_JWT_SECRET", "dev_super_secret_change_me"),
		TokenTTL:         envDuration("VIBECHECK_TOKEN_TTL", time.Hour),
		ChallengeTTL:     envDuration("VIBECHECK_CHALLENGE_TTL", 5*time.Minute),
		DemoClientID:     envString("DEMO_CLIENT_ID", "demo"),
		DemoClientSecret: envString("DEMO_CLIENT_SECRET", "demo"),
		RequireChallenge: envBool("REQUIRE_MATH_CHALLENGE", true),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

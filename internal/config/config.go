// Package config parses server configuration from flags, environment variables
// and an optional .env file. Flags take precedence over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server settings.
type Config struct {
	Addr           string
	DatabaseURL    string
	JWTKey         string
	AccessTTL      time.Duration
	Env            string
	RateBurst      int
	RatePerSec     float64
	GRPCHealthAddr string
	AdminEmails    []string
	CleanupSpec    string
	Dev            bool
}

// Production reports whether cookies must be marked Secure.
func (c Config) Production() bool { return c.Env == "production" }

// Load reads envFile if it exists and parses args on top of the environment.
func Load(args []string, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return Parse(args, os.Getenv)
}

// Parse builds a Config from args with getenv as the fallback source.
func Parse(args []string, getenv func(string) string) (Config, error) {
	var (
		cfg    Config
		admins string
	)
	set := flag.NewFlagSet("pollbox", flag.ContinueOnError)
	set.StringVar(&cfg.Addr, "addr", "", "listen address (ADDR)")
	set.StringVar(&cfg.DatabaseURL, "dsn", "", "PostgreSQL DSN (DATABASE_URL)")
	set.StringVar(&cfg.JWTKey, "jwt-key", "", "HS256 signing key (JWT_KEY, required)")
	set.DurationVar(&cfg.AccessTTL, "access-ttl", 0, "access token TTL (ACCESS_TTL)")
	set.StringVar(&cfg.Env, "env", "", "development|production (ENV)")
	set.IntVar(&cfg.RateBurst, "rate-burst", 0, "per-IP burst (RATE_BURST)")
	set.Float64Var(&cfg.RatePerSec, "rate-per-sec", 0, "per-IP sustained rate (RATE_PER_SEC)")
	set.StringVar(&cfg.GRPCHealthAddr, "grpc-health-addr", "", "gRPC health listen address, empty disables (GRPC_HEALTH_ADDR)")
	set.StringVar(&admins, "admins", "", "comma-separated admin emails (ADMIN_EMAILS)")
	set.StringVar(&cfg.CleanupSpec, "cleanup", "", "limiter cleanup cron spec (LIMITER_CLEANUP)")
	set.BoolVar(&cfg.Dev, "dev", false, "development logging and gRPC reflection (DEV)")
	if err := set.Parse(args); err != nil {
		return Config{}, err
	}

	str := func(dst *string, key, def string) {
		if *dst == "" {
			*dst = getenv(key)
		}
		if *dst == "" {
			*dst = def
		}
	}
	str(&cfg.Addr, "ADDR", ":8080")
	str(&cfg.DatabaseURL, "DATABASE_URL", "")
	str(&cfg.JWTKey, "JWT_KEY", "")
	str(&cfg.Env, "ENV", "development")
	str(&cfg.GRPCHealthAddr, "GRPC_HEALTH_ADDR", "")
	str(&admins, "ADMIN_EMAILS", "")
	str(&cfg.CleanupSpec, "LIMITER_CLEANUP", "@every 10m")

	var err error
	if cfg.AccessTTL == 0 {
		if cfg.AccessTTL, err = envDuration(getenv, "ACCESS_TTL", time.Hour); err != nil {
			return Config{}, err
		}
	}
	if cfg.RateBurst == 0 {
		if cfg.RateBurst, err = envInt(getenv, "RATE_BURST", 20); err != nil {
			return Config{}, err
		}
	}
	if cfg.RatePerSec == 0 {
		if cfg.RatePerSec, err = envFloat(getenv, "RATE_PER_SEC", 10); err != nil {
			return Config{}, err
		}
	}
	if !cfg.Dev {
		cfg.Dev, _ = strconv.ParseBool(getenv("DEV"))
	}
	for _, a := range strings.Split(admins, ",") {
		if a = strings.TrimSpace(a); a != "" {
			cfg.AdminEmails = append(cfg.AdminEmails, a)
		}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -dsn or DATABASE_URL env)")
	}
	if cfg.JWTKey == "" {
		return Config{}, errors.New("JWT_KEY required")
	}
	if cfg.Env != "development" && cfg.Env != "production" {
		return Config{}, fmt.Errorf("invalid ENV %q", cfg.Env)
	}
	return cfg, nil
}

func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	s := getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return d, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	s := getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}

func envFloat(getenv func(string) string, key string, def float64) (float64, error) {
	s := getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return f, nil
}

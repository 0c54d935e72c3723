// Package config loads censusd's configuration from environment
// variables and an optional .env file, using a getEnv/getEnvInt/
// getEnvBool load pattern.
package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/sketch"
)

// Config holds every tunable this service reads from its environment.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Storage
	DataDir string

	// Privacy parameters
	EpsilonDAU      float64
	EpsilonMAU      float64
	Delta           float64
	AdvancedDelta   float64
	MAUWindowDays   int
	WBound          float64
	DAUBudgetTotal  float64
	MAUBudgetTotal  float64
	RDPOrders       []float64

	// Sketch
	SketchImpl      sketch.Impl
	SketchK         int
	UseBloomForDiff bool
	BloomFPRate     float64

	// Pseudonymization
	HashSaltSecret       []byte
	HashSaltRotationDays int

	// HTTP surface
	ServiceAPIKey    string
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int
	MaxBodyBytes     int64

	// Test/synthetic determinism
	DefaultSeed *int64

	// Misc
	Timezone string
	LogLevel string
}

// Load reads configuration from the environment and an optional .env
// file, returning a validation error (not a silent default) for the
// fields this service requires: DATA_DIR and HASH_SALT_SECRET.
func Load() (*Config, error) {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GRACEFUL_TIMEOUT_SEC", 15)

	dataDir, ok := os.LookupEnv("DATA_DIR")
	if !ok || dataDir == "" {
		return nil, faults.New(faults.KindValidation, "DATA_DIR is required")
	}

	secretHex, ok := os.LookupEnv("HASH_SALT_SECRET")
	if !ok || secretHex == "" {
		return nil, faults.New(faults.KindValidation, "HASH_SALT_SECRET is required")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, faults.New(faults.KindValidation, "HASH_SALT_SECRET must be hex-encoded: "+err.Error())
	}

	mauWindowDays := getEnvInt("MAU_WINDOW_DAYS", 30)
	rotationDays := getEnvInt("HASH_SALT_ROTATION_DAYS", 30)
	if rotationDays < mauWindowDays {
		return nil, faults.New(faults.KindValidation, "HASH_SALT_ROTATION_DAYS must be >= MAU_WINDOW_DAYS",
			"rotation_days", rotationDays, "mau_window_days", mauWindowDays)
	}

	sketchImpl := sketch.Impl(getEnv("SKETCH_IMPL", string(sketch.ImplKMV)))
	if sketchImpl != sketch.ImplKMV && sketchImpl != sketch.ImplSet {
		return nil, faults.New(faults.KindValidation, "SKETCH_IMPL must be 'kmv' or 'set'", "value", sketchImpl)
	}

	cfg := &Config{
		Addr:            getEnv("ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		DataDir: dataDir,

		EpsilonDAU:     getEnvFloat("EPSILON_DAU", 0.3),
		EpsilonMAU:     getEnvFloat("EPSILON_MAU", 0.5),
		Delta:          getEnvFloat("DELTA", 1e-6),
		AdvancedDelta:  getEnvFloat("ADVANCED_DELTA", 1e-7),
		MAUWindowDays:  mauWindowDays,
		WBound:         getEnvFloat("W_BOUND", 2.0),
		DAUBudgetTotal: getEnvFloat("DAU_BUDGET_TOTAL", 3.0),
		MAUBudgetTotal: getEnvFloat("MAU_BUDGET_TOTAL", 3.5),
		RDPOrders:      getEnvFloatList("RDP_ORDERS", []float64{2, 4, 8, 16, 32}),

		SketchImpl:      sketchImpl,
		SketchK:         getEnvInt("SKETCH_K", 4096),
		UseBloomForDiff: getEnvBool("USE_BLOOM_FOR_DIFF", true),
		BloomFPRate:     getEnvFloat("BLOOM_FP_RATE", 0.01),

		HashSaltSecret:       secret,
		HashSaltRotationDays: rotationDays,

		ServiceAPIKey:    getEnv("SERVICE_API_KEY", ""),
		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 600),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 60),
		MaxBodyBytes:     int64(getEnvInt("MAX_BODY_BYTES", 1*1024*1024)),

		Timezone: getEnv("TIMEZONE", "UTC"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if seedStr, ok := os.LookupEnv("DEFAULT_SEED"); ok && seedStr != "" {
		seed, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			return nil, faults.New(faults.KindValidation, "DEFAULT_SEED must be an integer: "+err.Error())
		}
		cfg.DefaultSeed = &seed
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloatList(key string, fallback []float64) []float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fallback
		}
		out = append(out, f)
	}
	return out
}

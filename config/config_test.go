package config_test

import (
	"os"
	"testing"

	"github.com/turnstile-dp/censusd/config"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		v, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoadRequiresDataDir(t *testing.T) {
	clearEnv(t, "DATA_DIR", "HASH_SALT_SECRET")
	os.Setenv("HASH_SALT_SECRET", "0011223344")
	t.Cleanup(func() { os.Unsetenv("HASH_SALT_SECRET") })

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected an error when DATA_DIR is unset")
	}
}

func TestLoadRequiresHashSaltSecret(t *testing.T) {
	clearEnv(t, "DATA_DIR", "HASH_SALT_SECRET")
	os.Setenv("DATA_DIR", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("DATA_DIR") })

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected an error when HASH_SALT_SECRET is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "DATA_DIR", "HASH_SALT_SECRET", "EPSILON_DAU", "EPSILON_MAU",
		"MAU_WINDOW_DAYS", "W_BOUND", "DAU_BUDGET_TOTAL", "MAU_BUDGET_TOTAL")
	os.Setenv("DATA_DIR", t.TempDir())
	os.Setenv("HASH_SALT_SECRET", "0011223344")
	t.Cleanup(func() {
		os.Unsetenv("DATA_DIR")
		os.Unsetenv("HASH_SALT_SECRET")
	})

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EpsilonDAU != 0.3 {
		t.Errorf("expected default EPSILON_DAU 0.3, got %v", cfg.EpsilonDAU)
	}
	if cfg.EpsilonMAU != 0.5 {
		t.Errorf("expected default EPSILON_MAU 0.5, got %v", cfg.EpsilonMAU)
	}
	if cfg.MAUWindowDays != 30 {
		t.Errorf("expected default MAU_WINDOW_DAYS 30, got %v", cfg.MAUWindowDays)
	}
	if cfg.DAUBudgetTotal != 3.0 {
		t.Errorf("expected default DAU_BUDGET_TOTAL 3.0, got %v", cfg.DAUBudgetTotal)
	}
	if cfg.MAUBudgetTotal != 3.5 {
		t.Errorf("expected default MAU_BUDGET_TOTAL 3.5, got %v", cfg.MAUBudgetTotal)
	}
}

func TestLoadRejectsRotationShorterThanWindow(t *testing.T) {
	clearEnv(t, "DATA_DIR", "HASH_SALT_SECRET", "MAU_WINDOW_DAYS", "HASH_SALT_ROTATION_DAYS")
	os.Setenv("DATA_DIR", t.TempDir())
	os.Setenv("HASH_SALT_SECRET", "0011223344")
	os.Setenv("MAU_WINDOW_DAYS", "60")
	os.Setenv("HASH_SALT_ROTATION_DAYS", "30")
	t.Cleanup(func() {
		os.Unsetenv("DATA_DIR")
		os.Unsetenv("HASH_SALT_SECRET")
		os.Unsetenv("MAU_WINDOW_DAYS")
		os.Unsetenv("HASH_SALT_ROTATION_DAYS")
	})

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected an error when HASH_SALT_ROTATION_DAYS < MAU_WINDOW_DAYS")
	}
}

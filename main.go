package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/turnstile-dp/censusd/accountant"
	"github.com/turnstile-dp/censusd/config"
	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/hashing"
	"github.com/turnstile-dp/censusd/ledger"
	applog "github.com/turnstile-dp/censusd/logger"
	"github.com/turnstile-dp/censusd/pipeline"
	"github.com/turnstile-dp/censusd/window"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// app bundles every long-lived dependency a CLI command needs, built
// once per process invocation by bootstrap.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	ledger *ledger.Ledger
	pipe   *pipeline.Pipeline
}

// bootstrap wires config → logger → ledger → hashing → window →
// accountant → pipeline, in that order, the same dependency chain
// every command (serve, ingest, dau, ...) shares.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := applog.New(cfg)

	ledgerPath := filepath.Join(cfg.DataDir, "ledgers", "ledger.db")
	led, err := ledger.Open(ledgerPath, log)
	if err != nil {
		return nil, err
	}

	hashMgr, err := loadHashingManager(ctx, led, log, cfg)
	if err != nil {
		_ = led.Close()
		return nil, err
	}

	win := window.NewStore(log, window.Config{Impl: cfg.SketchImpl, K: cfg.SketchK, Rebuilder: led})

	dauAcct := accountant.New(accountant.Config{
		MonthlyCap: cfg.DAUBudgetTotal, Delta: cfg.Delta, AdvancedDelta: cfg.AdvancedDelta, Orders: cfg.RDPOrders,
	})
	mauAcct := accountant.New(accountant.Config{
		MonthlyCap: cfg.MAUBudgetTotal, Delta: cfg.Delta, AdvancedDelta: cfg.AdvancedDelta, Orders: cfg.RDPOrders,
	})

	params := pipeline.Params{
		WindowDays: cfg.MAUWindowDays, W: cfg.WBound,
		SketchImpl: cfg.SketchImpl, SketchK: cfg.SketchK, Seed: cfg.DefaultSeed,
		EpsilonDAU: cfg.EpsilonDAU, EpsilonMAU: cfg.EpsilonMAU, Delta: cfg.Delta,
	}
	pipe := pipeline.New(log, pipeline.DefaultConfig(), params, led, win, hashMgr, dauAcct, mauAcct)
	pipe.SetDataDir(cfg.DataDir)

	return &app{cfg: cfg, log: log, ledger: led, pipe: pipe}, nil
}

// loadHashingManager rehydrates persisted salt epochs from the
// ledger, falling back to a fresh single-epoch manager seeded from
// HASH_SALT_SECRET on first run.
func loadHashingManager(ctx context.Context, led *ledger.Ledger, log zerolog.Logger, cfg *config.Config) (*hashing.Manager, error) {
	epochs, err := led.LoadSaltEpochs(ctx)
	if err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return hashing.NewManager(log, cfg.HashSaltSecret, time.Now().UTC(), cfg.HashSaltRotationDays), nil
	}
	mgr := hashing.NewManager(log, epochs[0].Secret, epochs[0].EffectiveDate, epochs[0].RotationDays)
	mgr.LoadEpochs(epochs)
	return mgr, nil
}

func (a *app) close() {
	_ = a.ledger.Close()
}

func main() {
	root := &cobra.Command{
		Use:     "censusd",
		Short:   "Differentially private DAU/MAU turnstile engine",
		Version: version,
	}
	root.AddCommand(
		serveCmd(),
		ingestCmd(),
		dauCmd(),
		mauCmd(),
		generateSyntheticCmd(),
		flushDeletesCmd(),
		resetBudgetCmd(),
		rotateSaltCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to the process exit code: 1 for
// malformed input, 3 for a budget-exhausted admission denial, 2 for
// every other runtime failure (including cobra's own usage errors,
// which never carry a *faults.Error).
func exitCodeFor(err error) int {
	switch faults.Of(err) {
	case faults.KindValidation:
		return 1
	case faults.KindBudgetExhausted:
		return 3
	default:
		return 2
	}
}

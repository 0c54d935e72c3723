// Package pipeline orchestrates hashing, sketch, window, dp, ledger
// and accountant into seven operations: ingest, replay_deletions,
// release_dau, release_mau, reset_budget, rotate_salt, plus read-only
// snapshots.
//
// Concurrency follows a single-writer discipline: every mutating
// operation takes the exclusive lock; read-only snapshots take the
// shared lock. The ingest worker pool (buffered channel, batch flush
// on size or timer, graceful drain on Stop) commits each flush through
// one ledger transaction.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/accountant"
	"github.com/turnstile-dp/censusd/dp"
	"github.com/turnstile-dp/censusd/hashing"
	"github.com/turnstile-dp/censusd/ledger"
	"github.com/turnstile-dp/censusd/sketch"
	"github.com/turnstile-dp/censusd/window"
)

// Event is one ingest-surface activity or erasure event.
type Event struct {
	UserID    string
	Day       time.Time
	Op        ledger.Op
	Metadata  map[string]string
	CreatedAt time.Time
}

// Config controls the ingest worker pool's batching and backpressure.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Workers       int
}

// DefaultConfig returns production-sized ingest worker pool settings.
func DefaultConfig() Config {
	return Config{
		BufferSize:    10_000,
		BatchSize:     256,
		FlushInterval: 500 * time.Millisecond,
		Workers:       4,
	}
}

// Params fixes the domain constants a Pipeline enforces: the MAU
// rolling window length, the flippancy sensitivity bound W, the
// sketch implementation/size, and the deterministic seed used only in
// test/synthetic runs.
type Params struct {
	WindowDays int
	W          float64
	SketchImpl sketch.Impl
	SketchK    int
	Seed       *int64

	EpsilonDAU float64
	EpsilonMAU float64
	Delta      float64 // Gaussian delta for MAU releases
}

// Pipeline is the single entry point every transport (HTTP handler,
// CLI command) calls into.
type Pipeline struct {
	logger zerolog.Logger
	cfg    Config
	params Params

	ledger  *ledger.Ledger
	window  *window.Store
	hashing *hashing.Manager

	accountants map[string]*accountant.Accountant // "DAU", "MAU"

	mu sync.RWMutex // single-writer discipline

	eventCh chan Event
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	received    int64
	written     int64
	dropped     int64
	flushErrors int64

	// dataDir roots the supplemented backup-before-mutate and
	// budget-snapshot-report behaviors; empty disables both (e.g. in
	// tests that construct a Pipeline directly).
	dataDir string
}

// SetDataDir points the pipeline at its persisted data directory,
// which roots the backups/ and reports/ subdirectories. Call once
// before Start.
func (p *Pipeline) SetDataDir(dir string) { p.dataDir = dir }

// New constructs a Pipeline wired to its dependencies. dauAcct/mauAcct
// may be the same *accountant.Accountant only if their Config happens
// to coincide; normally each metric gets its own.
func New(logger zerolog.Logger, cfg Config, params Params, ledg *ledger.Ledger, win *window.Store, hashMgr *hashing.Manager, dauAcct, mauAcct *accountant.Accountant) *Pipeline {
	return &Pipeline{
		logger:  logger.With().Str("component", "pipeline").Logger(),
		cfg:     cfg,
		params:  params,
		ledger:  ledg,
		window:  win,
		hashing: hashMgr,
		accountants: map[string]*accountant.Accountant{
			"DAU": dauAcct,
			"MAU": mauAcct,
		},
		eventCh: make(chan Event, cfg.BufferSize),
	}
}

// Start launches the ingest worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info().Int("workers", p.cfg.Workers).Int("buffer_size", p.cfg.BufferSize).
		Dur("flush_interval", p.cfg.FlushInterval).Msg("ingest pipeline started")
}

// Stop drains in-flight batches and waits for every worker to exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Int64("received", atomic.LoadInt64(&p.received)).
		Int64("written", atomic.LoadInt64(&p.written)).
		Int64("dropped", atomic.LoadInt64(&p.dropped)).
		Int64("flush_errors", atomic.LoadInt64(&p.flushErrors)).
		Msg("ingest pipeline stopped")
}

// Submit enqueues event for asynchronous batched ingest. Non-blocking:
// the event is dropped (and counted) if the buffer is full, the
// backpressure choice for a high-volume event surface.
func (p *Pipeline) Submit(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	select {
	case p.eventCh <- event:
		atomic.AddInt64(&p.received, 1)
	default:
		atomic.AddInt64(&p.dropped, 1)
		p.logger.Warn().Str("user_id", event.UserID).Msg("event dropped: ingest buffer full")
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if _, err := p.IngestSync(context.Background(), batch); err != nil {
			atomic.AddInt64(&p.flushErrors, 1)
			p.logger.Error().Err(err).Int("worker", id).Int("batch_size", len(batch)).Msg("ingest batch failed")
		} else {
			atomic.AddInt64(&p.written, int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-p.eventCh:
					batch = append(batch, event)
					if len(batch) >= p.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case event := <-p.eventCh:
			batch = append(batch, event)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Stats is a point-in-time snapshot of ingest worker pool counters.
type Stats struct {
	Received    int64
	Written     int64
	Dropped     int64
	FlushErrors int64
}

// Stats returns the current ingest counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:    atomic.LoadInt64(&p.received),
		Written:     atomic.LoadInt64(&p.written),
		Dropped:     atomic.LoadInt64(&p.dropped),
		FlushErrors: atomic.LoadInt64(&p.flushErrors),
	}
}

// rngSource builds a fresh noise source for one release, honoring a
// configured deterministic seed (tests, synthetic runs) or falling
// back to the secure source.
func (p *Pipeline) rngSource() dp.Source {
	return dp.NewRNG(p.params.Seed)
}

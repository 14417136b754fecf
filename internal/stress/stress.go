// Package stress drives a WorkQueue through producer/consumer topologies and
// checks that every item is delivered exactly once.
package stress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ordoaetheris/workqueue"
)

var (
	// ErrDuplicate is returned when an item is delivered more than once.
	ErrDuplicate = errors.New("duplicate item")
	// ErrLost is returned when fewer items were delivered than were put.
	ErrLost = errors.New("lost items")
	// ErrTimeout is returned when a run does not finish within Config.Timeout.
	ErrTimeout = errors.New("run timed out")
)

// Config describes one topology.
type Config struct {
	Producers int
	Consumers int
	Items     int
	Runs      int
	// JitterOneIn injects a pause before roughly one in JitterOneIn operations.
	// Zero disables jitter.
	JitterOneIn int
	MaxJitter   time.Duration
	Timeout     time.Duration
}

// DefaultConfig mirrors the single producer, single consumer race hunt.
func DefaultConfig() Config {
	return Config{
		Producers:   1,
		Consumers:   1,
		Items:       20_000,
		Runs:        200,
		JitterOneIn: 64,
		MaxJitter:   50 * time.Microsecond,
		Timeout:     5 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Producers < 1:
		return fmt.Errorf("producers must be positive, got %d", c.Producers)
	case c.Consumers < 1:
		return fmt.Errorf("consumers must be positive, got %d", c.Consumers)
	case c.Items < 0:
		return fmt.Errorf("items must not be negative, got %d", c.Items)
	case c.Runs < 1:
		return fmt.Errorf("runs must be positive, got %d", c.Runs)
	case c.JitterOneIn < 0:
		return fmt.Errorf("jitter-one-in must not be negative, got %d", c.JitterOneIn)
	case c.JitterOneIn > 0 && c.MaxJitter <= 0:
		return fmt.Errorf("max-jitter must be positive when jitter is enabled")
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// Result summarizes one run.
type Result struct {
	RunID    string
	Consumed int
	Elapsed  time.Duration
}

// Runner executes runs against fresh queues.
type Runner struct {
	cfg           Config
	logger        *slog.Logger
	meterProvider metric.MeterProvider
	dump          io.Writer
}

// NewRunner creates a runner. Goroutine dumps of timed out runs are written to
// dump when it is non-nil. mp may be nil.
func NewRunner(cfg Config, logger *slog.Logger, mp metric.MeterProvider, dump io.Writer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stress config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger, meterProvider: mp, dump: dump}, nil
}

// RunAll executes cfg.Runs runs and stops at the first failure.
func (r *Runner) RunAll(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, r.cfg.Runs)
	for i := range r.cfg.Runs {
		res, err := r.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("run %d (%s): %w", i, res.RunID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Run executes a single run: producers put Items distinct integers and the
// last one to finish closes the queue, while consumers drain it until end of
// stream.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", res.RunID)

	opts := []workqueue.Option{workqueue.WithName("stress"), workqueue.WithLogger(logger)}
	if r.meterProvider != nil {
		opts = append(opts, workqueue.WithMeterProvider(r.meterProvider))
	}
	q := workqueue.New[int](opts...)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		seen     = bitset.New(uint(r.cfg.Items))
		consumed int
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	var producers sync.WaitGroup
	for p := range r.cfg.Producers {
		producers.Add(1)
		g.Go(func() error {
			defer producers.Done()
			for i := p; i < r.cfg.Items; i += r.cfg.Producers {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.jitter()
				if err := q.Put(i); err != nil {
					return fmt.Errorf("producer %d: %w", p, err)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		producers.Wait()
		q.Close()
		return nil
	})

	g.Go(func() error {
		return workqueue.Consume(gctx, q, r.cfg.Consumers, func(_ context.Context, item int) error {
			r.jitter()
			mu.Lock()
			defer mu.Unlock()
			if seen.Test(uint(item)) {
				return fmt.Errorf("%w: %d", ErrDuplicate, item)
			}
			seen.Set(uint(item))
			consumed++
			return nil
		})
	})

	err := g.Wait()
	res.Elapsed = time.Since(start)
	mu.Lock()
	res.Consumed = consumed
	delivered := seen.Count()
	mu.Unlock()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			logger.Error("run timed out", "consumed", res.Consumed, "queued", q.Len(), "waiting", q.Waiting())
			r.dumpGoroutines()
			return res, fmt.Errorf("%w after %s", ErrTimeout, r.cfg.Timeout)
		}
		return res, err
	}
	if res.Consumed != r.cfg.Items || delivered != uint(r.cfg.Items) {
		return res, fmt.Errorf("%w: consumed %d, distinct %d, want %d", ErrLost, res.Consumed, delivered, r.cfg.Items)
	}

	logger.Debug("run finished", "consumed", res.Consumed, "elapsed", res.Elapsed)
	return res, nil
}

// jitter occasionally parks the calling goroutine for a few microseconds to
// shake out lost wakeups.
func (r *Runner) jitter() {
	if r.cfg.JitterOneIn == 0 || rand.IntN(r.cfg.JitterOneIn) != 0 {
		return
	}
	time.Sleep(rand.N(r.cfg.MaxJitter))
}

func (r *Runner) dumpGoroutines() {
	if r.dump == nil {
		return
	}
	if err := pprof.Lookup("goroutine").WriteTo(r.dump, 2); err != nil {
		r.logger.Error("failed to dump goroutines", "error", err)
	}
}

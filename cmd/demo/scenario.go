package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/destination"
	"github.com/djlord-it/easy-relay/internal/dispatcher"
	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/ledger"
	"github.com/djlord-it/easy-relay/internal/logging"
	"github.com/djlord-it/easy-relay/internal/retry"
	"github.com/djlord-it/easy-relay/internal/transport/channel"
	"github.com/djlord-it/easy-relay/internal/worker"
)

type options struct {
	Requests    int
	Endpoint    string
	FailFirst   int
	Panic       bool
	MaxAttempts int
	RetryDelay  time.Duration
	Latency     time.Duration
	Timeout     time.Duration
	LogLevel    string
}

// printer serializes scenario output; destinations run on the worker goroutine
// while the dead letter sink may run on the caller's.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// simulated returns a destination that sleeps, fails its first failFirst
// calls and then reports message.
func simulated(p *printer, name string, latency time.Duration, failFirst int, message string) destination.Func {
	var mu sync.Mutex
	calls := 0
	return func(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return domain.Failure(ctx.Err().Error())
		}

		p.Printf("[%s] %s -> %s (call %d)\n", name, payload.PayloadCode, endpoint, n)
		if n <= failFirst {
			return domain.Failure(fmt.Sprintf("%s unavailable", name))
		}
		return domain.Success(message)
	}
}

type printDeadLetter struct {
	p *printer
}

func (d printDeadLetter) DeadLetter(_ context.Context, env domain.Envelope, reason string) error {
	d.p.Printf("[dead-letter] %s after %d attempts: %s\n", env.Request.PayloadCode, env.Attempt, reason)
	return nil
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	logger, err := logging.New(opts.LogLevel, logging.FormatConsole)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p := &printer{out: out}

	erp := simulated(p, "erp", opts.Latency*3/2, opts.FailFirst, "ERP processed")
	if opts.Panic {
		var once sync.Once
		inner := erp
		erp = func(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult {
			once.Do(func() { panic("erp connector crashed") })
			return inner(ctx, endpoint, payload)
		}
	}

	routes := []dispatcher.Route{
		{Name: "api", Category: domain.CategoryPrimary, Destination: simulated(p, "api", opts.Latency*2, opts.FailFirst, "API accepted")},
		{Name: "file", Category: domain.CategoryPrimary, Destination: simulated(p, "file", opts.Latency, opts.FailFirst, "Written to file")},
		{Name: "erp", Category: domain.CategorySecondary, Destination: erp},
	}
	categories := []domain.CategoryConfig{
		{Name: domain.CategoryPrimary, Policy: domain.MergePolicyAny},
		{Name: domain.CategorySecondary, Policy: domain.MergePolicyAny},
	}

	disp, err := dispatcher.New(categories, routes)
	if err != nil {
		return err
	}
	disp = disp.WithLogger(logger)

	policy := retry.Policy{MaxAttempts: opts.MaxAttempts, Strategy: retry.StrategyNone}
	if opts.RetryDelay > 0 {
		policy.Strategy = retry.StrategyConstant
		policy.BaseDelay = opts.RetryDelay
	}

	store := ledger.NewMemoryStore()
	recorder := ledger.NewRecorder(store).WithLogger(logger)

	w := worker.New(channel.NewQueue(), disp, recorder, opts.Endpoint).
		WithPolicy(policy).
		WithDeadLetter(printDeadLetter{p: p}).
		WithLogger(logger)

	ids := make([]uuid.UUID, 0, opts.Requests)
	for i := 1; i <= opts.Requests; i++ {
		req := domain.NewDeliveryRequest(
			fmt.Sprintf("QR%03d", i),
			fmt.Sprintf("UC%03d", i),
			time.Now().Format("2006-01-02T15:04:05"),
		)
		if err := w.Submit(req); err != nil {
			return err
		}
		ids = append(ids, req.ID)
	}
	p.Printf("submitted %d requests (retry %s)\n", len(ids), policy)

	// Everything is queued before the consumer starts so the run is repeatable.
	if err := w.Start(context.Background()); err != nil {
		return err
	}

	stopCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	stopErr := w.Stop(stopCtx)
	if stopErr != nil {
		logger.Warn("worker did not drain", zap.Error(stopErr))
	}

	printLedger(p, store, ids)
	return stopErr
}

func printLedger(p *printer, store *ledger.MemoryStore, ids []uuid.UUID) {
	p.Printf("\nledger:\n")
	for _, id := range ids {
		history, err := store.History(context.Background(), id)
		if err != nil {
			p.Printf("  %s: no verdict\n", id)
			continue
		}
		for _, rec := range history {
			cats := make([]string, 0, len(rec.Statuses))
			for c := range rec.Statuses {
				cats = append(cats, string(c))
			}
			sort.Strings(cats)

			p.Printf("  %s %s attempt=%d %s\n", rec.PayloadCode, rec.State, rec.Attempt, rec.RecordedAt.Format(time.RFC3339))
			for _, c := range cats {
				cat := domain.Category(c)
				p.Printf("    %-9s %-7s %s\n", c, rec.Statuses[cat], rec.Messages[cat])
			}
		}
	}
}

package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	opts := defaultOptions()

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the printing scenario against in-process destinations",
		Long: `demo submits printed-label requests to an in-process worker that fans
each one out to an API, a file and an ERP destination, retries failures and
prints the resulting ledger.

No external services are needed: destinations are simulated and the ledger
is kept in memory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.Requests, "requests", "n", opts.Requests, "number of requests to submit")
	f.StringVar(&opts.Endpoint, "endpoint", opts.Endpoint, "dispatch endpoint passed to every destination")
	f.IntVar(&opts.FailFirst, "fail-first", opts.FailFirst, "each destination fails its first N calls")
	f.BoolVar(&opts.Panic, "panic", opts.Panic, "make the ERP destination panic on its first call")
	f.IntVar(&opts.MaxAttempts, "max-attempts", opts.MaxAttempts, "attempts before dead-lettering, 0 = unbounded")
	f.DurationVar(&opts.RetryDelay, "retry-delay", opts.RetryDelay, "constant delay between attempts, 0 = immediate requeue")
	f.DurationVar(&opts.Latency, "latency", opts.Latency, "simulated destination latency")
	f.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "how long to wait for the queue to drain")
	f.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "worker log level")

	return cmd
}

func defaultOptions() *options {
	return &options{
		Requests:   1,
		Endpoint:   "http://example.com/api/print",
		RetryDelay: 200 * time.Millisecond,
		Latency:    100 * time.Millisecond,
		Timeout:    10 * time.Second,
		LogLevel:   "warn",
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

func main() {
	cliApp := &cli.App{
		Name:  "indexer",
		Usage: "model-scoped EVM block indexer for the Avalanche C-chain",
		Commands: []*cli.Command{
			continuousCommand(),
			blocksCommand(),
			rangeCommand(),
			failedCommand(),
			missingCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command failure to its fixed exit code: 0 ok (the
// cli.App.Run success path never reaches here), 1 runtime error, 2
// config error, 130 signalled.
func exitCode(err error) int {
	var cfgErr *apperr.ConfigInvalid
	if errors.As(err, &cfgErr) {
		return 2
	}
	if errors.Is(err, errSignalled) || errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// errSignalled is returned by continuousCommand when shutdown was triggered
// by SIGINT/SIGTERM, so exitCode can report 130.
var errSignalled = errors.New("interrupted")

// rootContext returns a context cancelled on SIGINT/SIGTERM, the
// graceful-shutdown trigger the orchestrator's Run loop honours. The
// returned signalled func reports true once a signal has fired.
func rootContext() (ctx context.Context, cancel context.CancelFunc, signalled func() bool) {
	ctx, cancel = context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	var fired atomic.Bool
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fired.Store(true)
		cancel()
	}()
	return ctx, cancel, fired.Load
}

// continuousCommand runs the orchestrator's worker pool, auto-enqueue,
// and sweeper loops until interrupted.
func continuousCommand() *cli.Command {
	return &cli.Command{
		Name:  "continuous",
		Usage: "lease and process jobs from the queue until interrupted, auto-enqueueing new block ranges from the chain tip",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "start-block", Usage: "block to resume from when block_processing is empty"},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel, signalled := rootContext()
			defer cancel()

			a, err := buildApp(ctx, c.Uint64("start-block"))
			if err != nil {
				return err
			}
			defer a.close()

			a.log.Info().Str("model", a.cfg.ModelName).Msg("starting continuous indexing")
			a.scheduler.Start()
			defer a.scheduler.Stop()
			if err := a.orchestrator.Run(ctx); err != nil {
				return err
			}
			if signalled() {
				return errSignalled
			}
			return nil
		},
	}
}

// blocksCommand enqueues a fixed, comma-free list of individual block
// numbers as high-priority jobs, then exits without running workers —
// callers combine it with `continuous` running elsewhere to drive them.
func blocksCommand() *cli.Command {
	return &cli.Command{
		Name:      "blocks",
		Usage:     "enqueue specific block numbers as jobs",
		ArgsUsage: "BLOCK [BLOCK...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "enqueue even if the block already has a block_processing row"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one block number is required")
			}
			ctx, cancel, _ := rootContext()
			defer cancel()

			a, err := buildApp(ctx, 0)
			if err != nil {
				return err
			}
			defer a.close()

			force := c.Bool("force")
			for _, arg := range c.Args().Slice() {
				var n uint64
				if _, err := fmt.Sscanf(arg, "%d", &n); err != nil {
					return fmt.Errorf("parsing block number %q: %w", arg, err)
				}
				if !force {
					done, err := a.processing.HasBlockProcessing(n)
					if err != nil {
						return fmt.Errorf("checking block %d: %w", n, err)
					}
					if done {
						a.log.Info().Uint64("block", n).Msg("already processed, skipping (use --force to reprocess)")
						continue
					}
				}
				id, err := a.jobQueue.Enqueue(ctx, domain.JobTypeBlock, fmt.Sprintf("block:%d", n), map[string]any{"block_number": n}, domain.JobPriorityHigh)
				if err != nil {
					return fmt.Errorf("enqueueing block %d: %w", n, err)
				}
				a.log.Info().Uint64("block", n).Str("job_id", id).Msg("enqueued block")
			}
			return nil
		},
	}
}

// rangeCommand enqueues one range job covering [start,end].
func rangeCommand() *cli.Command {
	return &cli.Command{
		Name:  "range",
		Usage: "enqueue a block range as a single job that expands into per-block jobs",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "start", Required: true},
			&cli.Uint64Flag{Name: "end", Required: true},
			&cli.BoolFlag{Name: "force", Usage: "expand every block in the range into a job, even ones already in block_processing"},
		},
		Action: func(c *cli.Context) error {
			start, end := c.Uint64("start"), c.Uint64("end")
			if end < start {
				return fmt.Errorf("end block %d is before start block %d", end, start)
			}
			ctx, cancel, _ := rootContext()
			defer cancel()

			a, err := buildApp(ctx, 0)
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.jobQueue.Enqueue(ctx, domain.JobTypeRange, fmt.Sprintf("range:%d-%d", start, end), map[string]any{
				"start_block": start,
				"end_block":   end,
				"force":       c.Bool("force"),
			}, domain.JobPriorityMedium)
			if err != nil {
				return fmt.Errorf("enqueueing range %d-%d: %w", start, end, err)
			}
			a.log.Info().Uint64("start", start).Uint64("end", end).Str("job_id", id).Msg("enqueued range")
			return nil
		},
	}
}

// failedCommand re-enqueues every job stuck in the failed state, for
// operator-triggered retry after fixing the underlying cause.
func failedCommand() *cli.Command {
	return &cli.Command{
		Name:  "failed",
		Usage: "re-enqueue jobs that exhausted their retry budget",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 100, Usage: "maximum number of failed jobs to re-enqueue"},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel, _ := rootContext()
			defer cancel()

			a, err := buildApp(ctx, 0)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.jobQueue.RequeueFailed(ctx, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("requeueing failed jobs: %w", err)
			}
			a.log.Info().Int("requeued", n).Msg("re-enqueued failed jobs")
			return nil
		},
	}
}

// missingCommand enqueues every block in [S,E] with no block_processing
// row, the operator-facing recovery for holes left by a crashed worker
// whose lease was never swept.
func missingCommand() *cli.Command {
	return &cli.Command{
		Name:      "missing",
		Usage:     "enqueue blocks in [S,E] with no block_processing row",
		ArgsUsage: "S E",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("missing requires exactly two arguments: S E")
			}
			var start, end uint64
			if _, err := fmt.Sscanf(c.Args().Get(0), "%d", &start); err != nil {
				return fmt.Errorf("parsing start block %q: %w", c.Args().Get(0), err)
			}
			if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &end); err != nil {
				return fmt.Errorf("parsing end block %q: %w", c.Args().Get(1), err)
			}
			if end < start {
				return fmt.Errorf("end block %d is before start block %d", end, start)
			}

			ctx, cancel, _ := rootContext()
			defer cancel()

			a, err := buildApp(ctx, 0)
			if err != nil {
				return err
			}
			defer a.close()

			missing, err := a.processing.MissingBlocksInRange(start, end)
			if err != nil {
				return fmt.Errorf("scanning for gaps in [%d,%d]: %w", start, end, err)
			}
			for _, n := range missing {
				id, err := a.jobQueue.Enqueue(ctx, domain.JobTypeBlock, fmt.Sprintf("block:%d", n), map[string]any{"block_number": n}, domain.JobPriorityLow)
				if err != nil {
					return fmt.Errorf("enqueueing missing block %d: %w", n, err)
				}
				a.log.Info().Uint64("block", n).Str("job_id", id).Msg("enqueued missing block")
			}
			a.log.Info().Int("missing", len(missing)).Msg("scanned for gaps")
			return nil
		},
	}
}

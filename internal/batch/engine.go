package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"videoscribe/internal/logging"
	"videoscribe/internal/models"
)

const (
	DefaultWorkers = 5
	MaxWorkers     = 8

	// Batches this small always run sequentially.
	sequentialThreshold = 2
)

// ItemFunc processes one reference. It may return several results for a
// multi-part video.
type ItemFunc func(ctx context.Context, ref models.VideoReference) ([]models.ProcessResult, error)

type Options struct {
	Workers    int
	Concurrent bool
	Progress   logging.Progress
	// Mu guards Progress and the run's bookkeeping. Items that write to the
	// same sink share it through logging.Synchronized. Nil means a private lock.
	Mu *sync.Mutex
}

// Result holds the successes in input order and one "ref -> reason" line per
// failed reference.
type Result struct {
	Successes []models.ProcessResult
	Failures  []string
}

// EffectiveWorkers clamps a requested pool size to [1, MaxWorkers].
func EffectiveWorkers(requested int) int {
	return min(max(1, requested), MaxWorkers)
}

type outcome struct {
	results []models.ProcessResult
	failure string
	done    bool
}

// Run executes fn once per reference. A failing item never stops its
// siblings; only an empty reference list is an error.
func Run(ctx context.Context, refs []models.VideoReference, fn ItemFunc, opts Options) (Result, error) {
	if len(refs) == 0 {
		return Result{}, models.ErrNoReferences
	}

	mu := opts.Mu
	if mu == nil {
		mu = new(sync.Mutex)
	}
	var (
		outcomes  = make([]outcome, len(refs))
		completed int
	)
	record := func(i int, results []models.ProcessResult, err error) {
		mu.Lock()
		defer mu.Unlock()

		completed++
		ref := refs[i]
		if err != nil {
			outcomes[i] = outcome{failure: fmt.Sprintf("%s -> %v", ref, err), done: true}
			opts.Progress.Printf("[%d/%d] ✗ %s: %v", completed, len(refs), ref, err)
			slog.Warn("batch item failed", slog.String("reference", ref.String()), slog.String("kind", models.ErrorKind(err)), slog.Any("error", err))
			return
		}
		outcomes[i] = outcome{results: results, done: true}
		opts.Progress.Printf("[%d/%d] ✓ %s", completed, len(refs), ref)
	}

	if len(refs) <= sequentialThreshold || !opts.Concurrent {
		for i, ref := range refs {
			results, err := runItem(ctx, ref, fn)
			record(i, results, err)
		}
		return collect(outcomes), nil
	}

	workers := EffectiveWorkers(opts.Workers)
	slog.Info("batch started", slog.Int("items", len(refs)), slog.Int("workers", workers))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, ref := range refs {
		g.Go(func() error {
			results, err := runItem(ctx, ref, fn)
			record(i, results, err)
			return nil
		})
	}
	_ = g.Wait()

	return collect(outcomes), nil
}

func runItem(ctx context.Context, ref models.VideoReference, fn ItemFunc) (results []models.ProcessResult, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("batch item panicked", slog.String("reference", ref.String()), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			results, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, ref)
}

func collect(outcomes []outcome) Result {
	var res Result
	for _, o := range outcomes {
		if !o.done {
			continue
		}
		if o.failure != "" {
			res.Failures = append(res.Failures, o.failure)
			continue
		}
		res.Successes = append(res.Successes, o.results...)
	}
	return res
}

package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoscribe/internal/logging"
	"videoscribe/internal/models"
)

func refs(ids ...string) []models.VideoReference {
	out := make([]models.VideoReference, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.VideoReference{Platform: models.PlatformBilibili, ID: id})
	}
	return out
}

func resultFor(ref models.VideoReference) models.ProcessResult {
	return models.ProcessResult{Metadata: models.VideoMetadata{VideoID: ref.ID}}
}

func TestRunIsolatesFailures(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "concurrent"}[concurrent], func(t *testing.T) {
			fn := func(_ context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
				if ref.ID == "B" {
					return nil, errors.New("boom")
				}
				return []models.ProcessResult{resultFor(ref)}, nil
			}

			res, err := Run(context.Background(), refs("A", "B", "C"), fn, Options{Workers: 3, Concurrent: concurrent})
			require.NoError(t, err)

			var ids []string
			for _, r := range res.Successes {
				ids = append(ids, r.Metadata.VideoID)
			}
			assert.ElementsMatch(t, []string{"A", "C"}, ids)
			assert.Equal(t, []string{"B -> boom"}, res.Failures)
		})
	}
}

func TestRunNoReferences(t *testing.T) {
	called := false
	_, err := Run(context.Background(), nil, func(context.Context, models.VideoReference) ([]models.ProcessResult, error) {
		called = true
		return nil, nil
	}, Options{Concurrent: true})
	assert.ErrorIs(t, err, models.ErrNoReferences)
	assert.False(t, called)
}

func TestRunSequentialOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	fn := func(_ context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
		mu.Lock()
		order = append(order, ref.ID)
		mu.Unlock()
		return []models.ProcessResult{resultFor(ref)}, nil
	}

	res, err := Run(context.Background(), refs("1", "2", "3", "4"), fn, Options{Workers: 4, Concurrent: false})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, order)
	require.Len(t, res.Successes, 4)
	assert.Equal(t, "4", res.Successes[3].Metadata.VideoID)
}

func TestRunSmallBatchIsSequential(t *testing.T) {
	var running, peak int32
	fn := func(_ context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	_, err := Run(context.Background(), refs("a", "b"), fn, Options{Workers: 8, Concurrent: true})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestRunBoundedConcurrency(t *testing.T) {
	var running, peak int32
	fn := func(_ context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return []models.ProcessResult{resultFor(ref)}, nil
	}

	res, err := Run(context.Background(), refs("1", "2", "3", "4", "5", "6"), fn, Options{Workers: 2, Concurrent: true})
	require.NoError(t, err)
	assert.Len(t, res.Successes, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	// results keep input order regardless of completion order
	assert.Equal(t, "1", res.Successes[0].Metadata.VideoID)
	assert.Equal(t, "6", res.Successes[5].Metadata.VideoID)
}

func TestRunRecoversPanics(t *testing.T) {
	fn := func(_ context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
		if ref.ID == "bad" {
			panic("nil map")
		}
		return []models.ProcessResult{resultFor(ref)}, nil
	}

	res, err := Run(context.Background(), refs("ok", "bad", "fine"), fn, Options{Workers: 2, Concurrent: true})
	require.NoError(t, err)
	assert.Len(t, res.Successes, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad -> panic: nil map", res.Failures[0])
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, refs("a"), func(context.Context, models.VideoReference) ([]models.ProcessResult, error) {
		t.Fatal("item should not run")
		return nil, nil
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a -> context canceled"}, res.Failures)
}

func TestRunProgressLines(t *testing.T) {
	var lines []string
	progress := func(line string) { lines = append(lines, line) }

	_, err := Run(context.Background(), refs("x", "y"), func(_ context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
		if ref.ID == "y" {
			return nil, models.ErrNotFound
		}
		return nil, nil
	}, Options{Progress: progress})
	require.NoError(t, err)
	assert.Equal(t, []string{"[1/2] ✓ x", "[2/2] ✗ y: not found"}, lines)
}

func TestRunSharesProgressLock(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	sink := func(line string) { lines = append(lines, line) }
	itemProgress := logging.Synchronized(sink, &mu)

	fn := func(_ context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
		itemProgress.Printf("working on %s", ref.ID)
		return []models.ProcessResult{resultFor(ref)}, nil
	}
	res, err := Run(context.Background(), refs("a", "b", "c", "d"), fn, Options{Workers: 4, Concurrent: true, Progress: sink, Mu: &mu})
	require.NoError(t, err)
	assert.Len(t, res.Successes, 4)
	assert.Len(t, lines, 8)

	mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Run(context.Background(), refs("z"), func(context.Context, models.VideoReference) ([]models.ProcessResult, error) {
			return nil, nil
		}, Options{Progress: func(string) {}, Mu: &mu})
	}()
	select {
	case <-done:
		t.Fatal("Run recorded progress without holding the shared lock")
	case <-time.After(50 * time.Millisecond):
	}
	mu.Unlock()
	<-done
}

func TestEffectiveWorkers(t *testing.T) {
	assert.Equal(t, 1, EffectiveWorkers(0))
	assert.Equal(t, 1, EffectiveWorkers(-3))
	assert.Equal(t, 5, EffectiveWorkers(5))
	assert.Equal(t, MaxWorkers, EffectiveWorkers(50))
}

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrLoadCachesValue(t *testing.T) {
	c := NewMemoryCache[float64]()
	var calls int32

	load := func(ctx context.Context) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	v, hit, err := c.GetOrLoad(context.Background(), "k", load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatalf("expected miss on first load")
	}
	if v != 42 {
		t.Fatalf("expected 42, got %v", v)
	}

	v, hit, err = c.GetOrLoad(context.Background(), "k", load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit || v != 42 {
		t.Fatalf("expected cached 42, got %v (hit=%v)", v, hit)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewMemoryCache[int]()
	boom := errors.New("boom")

	_, _, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := c.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after failed load, got %v", err)
	}

	v, _, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("expected retry to succeed with 7, got %v, %v", v, err)
	}
}

func TestGetOrLoadDeduplicatesConcurrentMisses(t *testing.T) {
	c := NewMemoryCache[string]()
	var calls int32
	release := make(chan struct{})

	load := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrLoad(context.Background(), "shared", load)
			if err != nil {
				errs <- err
				return
			}
			if v != "value" {
				errs <- errors.New("unexpected value " + v)
			}
		}()
	}

	// Give the goroutines a chance to pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single load for concurrent misses, got %d", got)
	}
}

func TestGetOrLoadHonoursCallerContext(t *testing.T) {
	c := NewMemoryCache[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.GetOrLoad(ctx, "k", func(ctx context.Context) (int, error) {
		time.Sleep(20 * time.Millisecond)
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

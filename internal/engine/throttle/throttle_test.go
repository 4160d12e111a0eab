package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLimiterEnforcesInterval(t *testing.T) {
	l := New(20) // 50ms between dispatches

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 90*time.Millisecond {
		t.Fatalf("3 dispatches at 20/s took %v, want >= ~100ms", elapsed)
	}
}

func TestLimiterSerializesConcurrentCallers(t *testing.T) {
	l := New(50) // 20ms between dispatches

	var mu sync.Mutex
	var stamps []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Run(context.Background(), l, func(context.Context) (struct{}, error) {
				mu.Lock()
				stamps = append(stamps, time.Now())
				mu.Unlock()
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if len(stamps) != 5 {
		t.Fatalf("got %d dispatches, want 5", len(stamps))
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		for j := 0; j < i; j++ {
			gap := stamps[i].Sub(stamps[j])
			if gap < 0 {
				gap = -gap
			}
			if gap < 10*time.Millisecond {
				t.Fatalf("dispatches %d and %d only %v apart", j, i, gap)
			}
		}
	}
}

func TestLimiterFailureDoesNotBlockQueue(t *testing.T) {
	l := New(100)

	boom := errors.New("boom")
	if _, err := Run(context.Background(), l, func(context.Context) (int, error) {
		return 0, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}

	got, err := Run(context.Background(), l, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("follow-up task got (%d, %v), want (42, nil)", got, err)
	}
}

func TestLimiterContextCancel(t *testing.T) {
	l := New(1) // 1/s: second wait must block long enough to cancel

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("warm wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context error on canceled wait")
	}
}

func TestUnlimitedLimiter(t *testing.T) {
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("unlimited limiter paced callers: %v", elapsed)
	}
}

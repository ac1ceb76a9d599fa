package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoPropagatesLastError(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	wantErr := errors.New("boom")
	err := p.Do(context.Background(), func() error {
		calls++
		return wantErr
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoPermanentShortCircuits(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	rejected := errors.New("rejected")
	err := p.Do(context.Background(), func() error {
		calls++
		return Permanent(rejected)
	})
	if calls != 1 {
		t.Fatalf("permanent error must not be retried, got %d attempts", calls)
	}
	if !errors.Is(err, rejected) {
		t.Fatalf("expected original error, got %v", err)
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 8 * time.Second}
	var prev time.Duration
	for i := 0; i < 6; i++ {
		d := p.Delay(i)
		if d > p.MaxDelay {
			t.Fatalf("delay(%d)=%v exceeds cap %v", i, d, p.MaxDelay)
		}
		if i < 3 && d <= prev {
			t.Fatalf("delay(%d)=%v did not grow past %v", i, d, prev)
		}
		prev = d
	}
	if got := p.Delay(5); got != p.MaxDelay {
		t.Fatalf("expected cap %v after growth, got %v", p.MaxDelay, got)
	}
}

func TestDoContextCancelAbortsWait(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := p.Do(ctx, func() error { return errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("wait was not aborted by cancel")
	}
}

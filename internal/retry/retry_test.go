package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond}, nil, "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, Delay: time.Millisecond}, nil, "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("unreachable")
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 4, Delay: time.Millisecond}, nil, "connect", func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if calls != 4 {
		t.Errorf("fn called %d times, want 4", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Do() error = %v, want wrapped %v", err, sentinel)
	}
	if !strings.Contains(err.Error(), "connect failed after 4 attempts") {
		t.Errorf("Do() error = %q, want attempt count in message", err)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, Config{MaxAttempts: 10, Delay: time.Minute}, nil, "op", func(ctx context.Context) error {
		calls++
		cancel() // cancel during the first attempt; the sleep must abort
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDoZeroConfigUsesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.Delay != 5*time.Second {
		t.Errorf("Delay = %v, want 5s", cfg.Delay)
	}
}

func TestDoBacksOffWithMultiplier(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	calls := 0

	cfg := Config{
		MaxAttempts: 3,
		Delay:       10 * time.Millisecond,
		Multiplier:  2.0,
	}
	_ = Do(context.Background(), cfg, nil, "op", func(ctx context.Context) error {
		now := time.Now()
		if calls > 0 {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		calls++
		return errors.New("fail")
	})

	if len(gaps) != 2 {
		t.Fatalf("got %d gaps, want 2", len(gaps))
	}
	if gaps[0] < 10*time.Millisecond {
		t.Errorf("first gap = %v, want >= 10ms", gaps[0])
	}
	if gaps[1] < 20*time.Millisecond {
		t.Errorf("second gap = %v, want >= 20ms (doubled)", gaps[1])
	}
}

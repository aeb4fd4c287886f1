package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"broker_go/internal/domain"
)

func fastOptions() RetryOptions {
	return RetryOptions{Factor: 1.2, Min: time.Millisecond, Max: 4 * time.Millisecond}
}

func TestRetrySucceedsAfterBudgetedFailures(t *testing.T) {
	const failures = 3
	attempts := 0

	got, err := Retry(context.Background(), nil, "buy", fastOptions(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts <= failures {
			return "", domain.NewRetryableError("buy", errors.New("flaky"), failures+1)
		}
		return "order-1", nil
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if got != "order-1" {
		t.Errorf("result = %q, want order-1", got)
	}
	if attempts != failures+1 {
		t.Errorf("attempts = %d, want %d", attempts, failures+1)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	budget := 2

	_, err := Retry(context.Background(), nil, "buy", fastOptions(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, domain.NewRetryableError("buy", errors.New("down"), budget)
	})
	if err == nil {
		t.Fatal("expected error after budget exhaustion")
	}
	// One initial attempt plus `budget` retries.
	if attempts != budget+1 {
		t.Errorf("attempts = %d, want %d", attempts, budget+1)
	}
}

func TestRetryUnclassifiedPropagatesImmediately(t *testing.T) {
	attempts := 0
	fatal := errors.New("bad credentials")

	_, err := Retry(context.Background(), nil, "getFee", fastOptions(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, domain.NewExchangeError("getFee", fatal)
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected wrapped fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryTransientNeverGivesUp(t *testing.T) {
	// A bounded horizon: far more failures than any retry budget allows.
	const horizon = 50
	attempts := 0

	got, err := Retry(context.Background(), nil, "checkOrder", fastOptions(), func(ctx context.Context) (bool, error) {
		attempts++
		if attempts < horizon {
			return false, domain.NewTransientError("checkOrder", errors.New("rate limited"), 0)
		}
		return true, nil
	})
	if err != nil || !got {
		t.Fatalf("Retry = (%v, %v), want (true, nil)", got, err)
	}
	if attempts != horizon {
		t.Errorf("attempts = %d, want %d", attempts, horizon)
	}
}

func TestRetryHonorsBackoffDelay(t *testing.T) {
	attempts := 0
	start := time.Now()
	delay := 20 * time.Millisecond

	_, err := Retry(context.Background(), nil, "buy", fastOptions(), func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, domain.NewTransientError("buy", errors.New("slow down"), delay)
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("second attempt ran after %v, want at least %v", elapsed, delay)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, nil, "buy", RetryOptions{Factor: 1.2, Min: time.Hour, Max: time.Hour},
			func(ctx context.Context) (int, error) {
				attempts++
				return 0, domain.NewTransientError("buy", errors.New("rate limited"), 0)
			})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not honor context cancellation")
	}
}

package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errFlaky = Transient(errors.New("503"), 503)

func callWith(b *Breaker, err error) error {
	_, got := Call(context.Background(), b, func(_ context.Context) (int, error) {
		return 0, err
	})
	return got
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("delius", BreakerConfig{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_ = callWith(b, errFlaky)
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	_, err := Call(context.Background(), b, func(_ context.Context) (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Error("fn should not run while open")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if !IsTransient(err) {
		t.Error("open circuit should be transient")
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("assessment", BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	for i := 0; i < 5; i++ {
		_ = callWith(b, errors.New("not found"))
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker("delius", BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	_ = callWith(b, errFlaky)
	_ = callWith(b, nil)
	_ = callWith(b, errFlaky)
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("delius", BreakerConfig{Threshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return now }

	_ = callWith(b, errFlaky)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	// A failed probe reopens.
	_ = callWith(b, errFlaky)
	if b.State() != Open {
		t.Fatalf("expected reopened, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	if err := callWith(b, nil); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakers_ForAndSnapshot(t *testing.T) {
	r := NewBreakers(BreakerConfig{Threshold: 1, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.For("delius")
		}()
	}
	wg.Wait()

	if r.For("delius") != r.For("delius") {
		t.Fatal("expected the same breaker instance")
	}
	_ = callWith(r.For("assessment"), errFlaky)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 services, got %d", len(snap))
	}
	if snap[0].Service != "assessment" || snap[0].State != "open" {
		t.Errorf("unexpected first row: %+v", snap[0])
	}
	if snap[1].Service != "delius" || snap[1].State != "closed" {
		t.Errorf("unexpected second row: %+v", snap[1])
	}
}

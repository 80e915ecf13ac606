package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckerRunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(Thresholds{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})
	checker := NewChecker(collector, alerter, Thresholds{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	// Let it tick once then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Good — Run returned.
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestCheckerDefaultInterval(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(Thresholds{})

	// Zero interval should default to 5 minutes.
	checker := NewChecker(collector, alerter, Thresholds{CheckIntervalSecs: 0})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

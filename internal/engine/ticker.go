package engine

import (
	"context"
	"sync"
	"time"

	"github.com/railtwin/traincontrol/internal/platform/logger"
)

// DefaultTickRate defines how often the network is advanced (in real time).
const DefaultTickRate = 1 * time.Second

// Stepper is advanced once per tick.
type Stepper interface {
	Tick(now time.Time)
}

// Ticker is the external scheduler of the simulation. It does NOT know about
// trains or signals - only when the next tick is due. Exactly one tick runs
// at a time because ticks are executed on the ticker's own goroutine.
type Ticker struct {
	stepper  Stepper
	logger   *logger.Logger
	rate     time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTicker creates a new ticker. A non-positive rate falls back to DefaultTickRate.
func NewTicker(stepper Stepper, rate time.Duration, log *logger.Logger) *Ticker {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Ticker{
		stepper:  stepper,
		logger:   log,
		rate:     rate,
		stopChan: make(chan struct{}),
	}
}

// Rate returns the tick period.
func (t *Ticker) Rate() time.Duration {
	return t.rate
}

// Start begins the simulation loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("Simulation ticker started at " + t.rate.String() + " per tick.")

	ticker := time.NewTicker(t.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Simulation ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Simulation ticker stopped manually.")
			return
		case now := <-ticker.C:
			t.stepper.Tick(now)
		}
	}
}

// Stop gracefully stops the ticker. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

package phoneauth

import (
	"context"
	"time"
)

// resendTimer is one countdown instance. Only the instance whose token matches
// Controller.timer may write the cooldown.
type resendTimer struct {
	token  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// startResendTimerLocked cancels any running countdown and starts a new one
// from the configured cooldown. Callers must hold c.mu.
func (c *Controller) startResendTimerLocked() {
	c.stopTimerLocked()

	c.timerSeq++
	ctx, cancel := context.WithCancel(context.Background())
	t := &resendTimer{
		token:  c.timerSeq,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.timer = t
	c.state.ResendCooldown = c.cfg.Flow.ResendCooldown
	c.metrics.Inc(MetricTimerStarted)

	go c.runTimer(ctx, t, c.cfg.Flow.TickInterval)
}

// stopTimerLocked cancels the running countdown, if any. It does not touch
// the cooldown value. Callers must hold c.mu.
func (c *Controller) stopTimerLocked() {
	if c.timer == nil {
		return
	}
	c.timer.cancel()
	c.timer = nil
	if c.state.ResendCooldown > 0 {
		c.metrics.Inc(MetricTimerCancelled)
	}
}

func (c *Controller) runTimer(ctx context.Context, t *resendTimer, interval time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick(t.token) {
				return
			}
		}
	}
}

// tick decrements the cooldown on behalf of the countdown identified by token.
// It reports whether that countdown should keep running.
func (c *Controller) tick(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer == nil || c.timer.token != token {
		return false
	}
	if c.state.ResendCooldown > 0 {
		c.state.ResendCooldown--
		c.publishLocked()
	}
	if c.state.ResendCooldown > 0 {
		return true
	}

	c.timer.cancel()
	c.timer = nil
	c.metrics.Inc(MetricTimerExpired)
	return false
}

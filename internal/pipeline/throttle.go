package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Throttle enforces a fixed delay between consecutive generation calls,
// measured from the end of one call to the start of the next. The first call
// passes immediately and nothing waits after the last. It does not adapt to
// service feedback.
type Throttle struct {
	delay   time.Duration
	limiter *rate.Limiter
	now     func() time.Time
}

// NewThrottle returns a Throttle spacing calls by delay. A non-positive delay
// disables throttling.
func NewThrottle(delay time.Duration) *Throttle {
	t := &Throttle{delay: delay, now: time.Now}
	t.reset()
	return t
}

func (t *Throttle) reset() {
	if t.delay <= 0 {
		t.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	t.limiter = rate.NewLimiter(rate.Every(t.delay), 1)
}

// Wait blocks until the next call may start or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "pipeline: throttle wait")
	}
	return nil
}

// Done marks the end of a call. The next Wait returns no earlier than delay
// after this point, however long the call took.
func (t *Throttle) Done() {
	if t == nil || t.delay <= 0 {
		return
	}
	t.reset()
	t.limiter.AllowN(t.now(), 1)
}

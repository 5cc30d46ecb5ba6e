package executor

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/modelbridge/pkg/api"
)

// newBackOff returns a fresh schedule for one call. MaxElapsedTime is zero
// so the schedule never stops on its own; the attempt budget ends retries.
func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.BaseDelay
	b.RandomizationFactor = e.cfg.Jitter
	b.Multiplier = 2
	b.MaxInterval = e.cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// delay computes the wait before the next attempt: the next backoff
// interval, raised to the rate-limit floor for rate-limit kinds and to the
// server's Retry-After hint, then capped at MaxDelay.
func (e *Executor) delay(b backoff.BackOff, kind api.ErrorKind, hint time.Duration) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop {
		d = e.cfg.MaxDelay
	}
	switch kind {
	case api.ErrorKindRateLimited, api.ErrorKindConcurrencyLimited:
		if d < e.cfg.RateLimitFloor {
			d = e.cfg.RateLimitFloor
		}
	}
	if hint > d {
		d = hint
	}
	if d > e.cfg.MaxDelay {
		d = e.cfg.MaxDelay
	}
	return d
}

func parseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

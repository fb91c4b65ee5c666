package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	resourceCore   = "core"
	resourceSearch = "search"
)

// Starting allowances before any response has reported the real numbers.
var initialAllowance = map[string]struct {
	remaining int
	window    time.Duration
}{
	resourceCore:   {remaining: 5000, window: time.Hour},
	resourceSearch: {remaining: 30, window: time.Minute},
}

// requestBudget tracks one GitHub rate-limit bucket. Callers block in acquire
// once the bucket is spent until its reset time, a Retry-After cooldown ends,
// or a response reports fresh numbers.
type requestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	now       func() time.Time
	trialOut  bool
	cooldown  time.Time
	notifyCh  chan struct{}

	// allowance and window refill the bucket when responses carry no
	// rate-limit headers (rate limiting disabled on the server).
	allowance int
	window    time.Duration
}

func newRequestBudget(now func() time.Time, remaining int, window time.Duration) *requestBudget {
	return &requestBudget{
		remaining: remaining,
		reset:     now().Add(window),
		now:       now,
		notifyCh:  make(chan struct{}),
		allowance: remaining,
		window:    window,
	}
}

func (b *requestBudget) acquire(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("rate limit: nil context")
	}
	for {
		b.mu.Lock()
		now := b.now()

		if now.Before(b.cooldown) {
			wait, ch := b.cooldown.Sub(now), b.notifyCh
			b.mu.Unlock()
			if err := waitFor(ctx, wait, ch); err != nil {
				return err
			}
			continue
		}

		if b.remaining > 0 {
			b.remaining--
			b.mu.Unlock()
			return nil
		}

		// Past the reset with no fresh numbers yet: let a single request
		// through to learn the new budget.
		if !now.Before(b.reset) {
			if !b.trialOut {
				b.trialOut = true
				b.mu.Unlock()
				return nil
			}
			ch := b.notifyCh
			b.mu.Unlock()
			if err := waitFor(ctx, -1, ch); err != nil {
				return err
			}
			continue
		}

		wait, ch := b.reset.Sub(now), b.notifyCh
		b.mu.Unlock()
		if err := waitFor(ctx, wait, ch); err != nil {
			return err
		}
	}
}

// waitFor blocks until d elapses, ch is closed, or ctx ends. A negative d
// waits on ch and ctx only.
func waitFor(ctx context.Context, d time.Duration, ch <-chan struct{}) error {
	if d < 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	case <-timer.C:
	}
	return nil
}

// update applies a response's rate-limit headers. A nil resp (the request
// failed in transport) only releases a pending trial request.
func (b *requestBudget) update(resp *http.Response) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if resp == nil {
		if b.trialOut {
			b.trialOut = false
			b.signalLocked()
		}
		return
	}

	changed := false

	if resp.Header.Get("X-RateLimit-Remaining") == "" && resp.Header.Get("X-RateLimit-Reset") == "" {
		if b.remaining < b.allowance || !b.now().Before(b.reset) {
			b.remaining = b.allowance
			b.reset = b.now().Add(b.window)
			changed = true
		}
	}

	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		until := b.now().Add(time.Duration(seconds) * time.Second)
		if until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}

	if val, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil && val >= 0 {
		if b.remaining != val {
			b.remaining = val
			changed = true
		}
	}

	if val, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil && val > 0 {
		if reset := time.Unix(val, 0); !b.reset.Equal(reset) {
			b.reset = reset
			changed = true
		}
	}

	// A finished trial request always releases the bucket, even without fresh numbers.
	if changed || b.trialOut {
		b.trialOut = false
		b.signalLocked()
	}
}

func (b *requestBudget) signalLocked() {
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

// rateLimiter holds one budget per GitHub rate-limit resource. Search has its
// own, much smaller, bucket than the rest of the REST API.
type rateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	budgets map[string]*requestBudget
}

func newRateLimiter(now func() time.Time) *rateLimiter {
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{now: now, budgets: map[string]*requestBudget{}}
}

func (l *rateLimiter) budget(resource string) *requestBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.budgets[resource]; ok {
		return b
	}
	start, ok := initialAllowance[resource]
	if !ok {
		start = initialAllowance[resourceCore]
	}
	b := newRequestBudget(l.now, start.remaining, start.window)
	l.budgets[resource] = b
	return b
}

// resourceFor maps a request to the bucket GitHub will charge it to.
func resourceFor(req *http.Request) string {
	path := strings.TrimPrefix(req.URL.Path, "/api/v3")
	if strings.HasPrefix(path, "/search/") {
		return resourceSearch
	}
	return resourceCore
}

type rateLimitRoundTripper struct {
	base    http.RoundTripper
	limiter *rateLimiter
}

func (t *rateLimitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	requested := resourceFor(req)
	if err := t.limiter.budget(requested).acquire(req.Context()); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	charged := requested
	if resp != nil {
		if r := resp.Header.Get("X-RateLimit-Resource"); r != "" {
			charged = r
		}
	}
	t.limiter.budget(charged).update(resp)
	if charged != requested {
		t.limiter.budget(requested).update(nil)
	}
	return resp, err
}

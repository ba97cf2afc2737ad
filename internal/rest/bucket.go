package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/gatewire"
)

// request is one pending dispatcher call.
type request struct {
	ctx       context.Context
	requestID string
	method    string
	path      string
	body      []byte
	reason    string
	result    chan result
}

type result struct {
	data json.RawMessage
	err  error
}

// bucket is a single quota unit: one FIFO queue, counters mirroring the
// server-advertised quota, and one worker goroutine. The single worker is
// what makes the read-check-act sequence on the counters atomic: at most
// one request per bucket is ever in flight, so two requests can never both
// observe remaining > 0 and overshoot.
type bucket struct {
	key string
	d   *Dispatcher

	queue  chan *request
	logger *zap.Logger

	mu        sync.Mutex
	limit     int
	remaining int
	resetAt   time.Time
}

func newBucket(d *Dispatcher, key string) *bucket {
	b := &bucket{
		key:    key,
		d:      d,
		queue:  make(chan *request, 64),
		logger: d.logger.With(zap.String("bucket", key)),
	}
	go b.run(d.ctx)
	return b
}

// run processes the bucket's queue in submission order until the dispatcher
// shuts down, then fails anything still pending.
func (b *bucket) run(ctx context.Context) {
	for {
		select {
		case req := <-b.queue:
			b.process(ctx, req)
		case <-ctx.Done():
			for {
				select {
				case req := <-b.queue:
					req.result <- result{err: gatewire.ErrClosed}
				default:
					return
				}
			}
		}
	}
}

func (b *bucket) process(ctx context.Context, req *request) {
	for attempt := 0; ; attempt++ {
		// the caller may cancel only while the request is unsent
		if err := req.ctx.Err(); err != nil {
			req.result <- result{err: err}
			return
		}
		if err := b.waitQuota(ctx, req.ctx); err != nil {
			req.result <- result{err: err}
			return
		}
		if err := b.d.global.Wait(req.ctx); err != nil {
			req.result <- result{err: err}
			return
		}

		status, header, body, err := b.d.do(req)
		if err != nil {
			if attempt >= b.d.maxRetries {
				req.result <- result{err: fmt.Errorf("%s %s: %w: %v",
					req.method, req.path, gatewire.ErrRetryExhausted, err)}
				return
			}
			b.logger.Warn("request failed, retrying",
				zap.String("request_id", req.requestID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if !sleep(ctx, retryDelay(b.d.retryBase, attempt)) {
				req.result <- result{err: ctx.Err()}
				return
			}
			continue
		}

		info := parseRateLimitHeaders(header)
		b.update(info)

		switch {
		case status == http.StatusTooManyRequests:
			delay := info.retryAfter
			if delay <= 0 {
				delay = info.resetAfter
			}
			if delay <= 0 {
				delay = time.Second
			}
			if info.global {
				b.d.global.LockFor(delay)
				b.logger.Warn("global rate limit exceeded",
					zap.Duration("retry_after", delay))
			} else {
				b.penalize(delay)
				b.logger.Warn("bucket rate limit exceeded",
					zap.Duration("retry_after", delay))
			}
			if attempt >= b.d.maxRetries {
				req.result <- result{err: fmt.Errorf("%s %s: %w",
					req.method, req.path, gatewire.ErrRetryExhausted)}
				return
			}

		case status >= 500:
			if attempt >= b.d.maxRetries {
				req.result <- result{err: fmt.Errorf("%s %s: status %d: %w",
					req.method, req.path, status, gatewire.ErrRetryExhausted)}
				return
			}
			b.logger.Warn("server error, retrying",
				zap.Int("status", status),
				zap.Int("attempt", attempt))
			if !sleep(ctx, retryDelay(b.d.retryBase, attempt)) {
				req.result <- result{err: ctx.Err()}
				return
			}

		case status >= 400:
			req.result <- result{err: newAPIError(req, status, body)}
			return

		default:
			req.result <- result{data: body}
			return
		}
	}
}

// waitQuota blocks until the bucket has quota to spend, refilling the
// counter once the advertised reset time has passed.
func (b *bucket) waitQuota(ctx, reqCtx context.Context) error {
	for {
		b.mu.Lock()
		if b.limit > 0 && b.remaining <= 0 {
			wait := time.Until(b.resetAt)
			if wait > 0 {
				b.mu.Unlock()
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-reqCtx.Done():
					timer.Stop()
					return reqCtx.Err()
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
				continue
			}
			b.remaining = b.limit
		}
		if b.limit > 0 {
			b.remaining--
		}
		b.mu.Unlock()
		return nil
	}
}

// update applies the quota headers of a response. remaining is never pushed
// below zero.
func (b *bucket) update(info rateLimitInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if info.hasLimit {
		b.limit = info.limit
	}
	if info.hasRemaining {
		b.remaining = info.remaining
		if b.remaining < 0 {
			b.remaining = 0
		}
	}
	if info.resetAfter > 0 {
		b.resetAt = time.Now().Add(info.resetAfter)
	}
}

// penalize empties the bucket until the retry-after delay has passed.
func (b *bucket) penalize(delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remaining = 0
	if b.limit <= 0 {
		b.limit = 1
	}
	if t := time.Now().Add(delay); t.After(b.resetAt) {
		b.resetAt = t
	}
}

func newAPIError(req *request, status int, body []byte) *gatewire.APIError {
	var parsed struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &parsed)
	return &gatewire.APIError{
		Status:  status,
		Method:  req.method,
		Route:   req.path,
		Body:    body,
		Message: parsed.Message,
	}
}

// retryDelay is the capped exponential backoff between transient-failure
// attempts.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	d := base << uint(attempt)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

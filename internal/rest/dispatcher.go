// Package rest implements the rate-limit-aware request dispatcher: outgoing
// calls are serialized per quota bucket in FIFO order, gated by the shared
// global limiter, and retried on transient failures up to a budget.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/gatewire"
)

// Config configures a dispatcher.
type Config struct {
	// Token is sent verbatim as the Authorization header value.
	Token string

	// BaseURL is the API root every route is resolved against.
	BaseURL string

	UserAgent string

	// MaxRetries is the retry budget for 429 and transient failures.
	MaxRetries int

	// RetryBaseDelay seeds the exponential backoff between transient-
	// failure attempts; defaults to one second.
	RetryBaseDelay time.Duration

	// GlobalPerSecond is the steady aggregate request ceiling; zero keeps
	// only the 429-driven global gate.
	GlobalPerSecond rate.Limit
	GlobalBurst     int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Dispatcher routes outgoing requests to their rate-limit buckets. Buckets
// are created lazily on first use and live for the dispatcher's lifetime,
// each with its own worker; the dispatcher owns the global limiter they all
// share. Multiple independent dispatchers can coexist in one process: all
// state lives on the instance.
type Dispatcher struct {
	token      string
	baseURL    string
	userAgent  string
	maxRetries int
	retryBase  time.Duration

	http   *http.Client
	logger *zap.Logger
	global *GlobalLimiter

	mu      sync.Mutex
	buckets map[string]*bucket

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher validates the configuration and builds a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gatewire (https://github.com/luciancaetano/gatewire)"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		token:      cfg.Token,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBaseDelay,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
		global:     NewGlobalLimiter(cfg.GlobalPerSecond, cfg.GlobalBurst),
		buckets:    make(map[string]*bucket),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Request enqueues a call on its bucket and blocks until it resolves.
//
// body may be nil, a []byte / json.RawMessage sent as-is, or any value to be
// JSON-encoded. The context cancels the request only while it is still
// queued; once sent it runs to completion. Failures are *gatewire.APIError
// for non-retryable 4xx, gatewire.ErrRetryExhausted after the retry budget,
// or the underlying transport error.
func (d *Dispatcher) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	encoded, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req := &request{
		ctx:       ctx,
		requestID: uuid.NewString(),
		method:    method,
		path:      path,
		body:      encoded,
		reason:    reasonFrom(ctx),
		result:    make(chan result, 1),
	}

	b := d.bucket(bucketKey(method, path))
	select {
	case b.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.ctx.Done():
		return nil, gatewire.ErrClosed
	}

	select {
	case res := <-req.result:
		return res.data, res.err
	case <-d.ctx.Done():
		select {
		case res := <-req.result:
			return res.data, res.err
		default:
			return nil, gatewire.ErrClosed
		}
	}
}

// Close stops all bucket workers. Queued requests fail with ErrClosed;
// in-flight ones run to completion.
func (d *Dispatcher) Close() {
	d.cancel()
}

// bucket returns the bucket for a key, creating it (and its worker) on
// first use.
func (d *Dispatcher) bucket(key string) *bucket {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buckets[key]
	if !ok {
		b = newBucket(d, key)
		d.buckets[key] = b
	}
	return b
}

// do performs the HTTP round trip. The dispatcher's own context bounds the
// request, not the caller's: a sent request is never cancelled mid-flight.
func (d *Dispatcher) do(req *request) (int, http.Header, []byte, error) {
	var reader io.Reader
	if len(req.body) > 0 {
		reader = bytes.NewReader(req.body)
	}

	hreq, err := http.NewRequestWithContext(d.ctx, req.method, d.baseURL+req.path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	hreq.Header.Set("Authorization", d.token)
	hreq.Header.Set("User-Agent", d.userAgent)
	if len(req.body) > 0 {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if req.reason != "" {
		hreq.Header.Set(gatewire.HeaderAuditReason, req.reason)
	}

	start := time.Now()
	resp, err := d.http.Do(hreq)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}

	d.logger.Debug("request completed",
		zap.String("request_id", req.requestID),
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp.StatusCode, resp.Header, body, nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

type reasonKey struct{}

// WithReason attaches an audit reason to the request context; it is sent in
// the audit-reason header.
func WithReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

func reasonFrom(ctx context.Context) string {
	reason, _ := ctx.Value(reasonKey{}).(string)
	return reason
}

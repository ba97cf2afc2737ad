package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/luciancaetano/gatewire"
)

// rateLimitInfo is the quota metadata advertised by a response, consumed
// verbatim by the bucket and global limiter.
type rateLimitInfo struct {
	limit      int
	remaining  int
	resetAfter time.Duration
	bucket     string
	global     bool
	retryAfter time.Duration

	hasLimit     bool
	hasRemaining bool
}

func parseRateLimitHeaders(h http.Header) rateLimitInfo {
	var info rateLimitInfo

	if v := h.Get(gatewire.HeaderRateLimitLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.limit = n
			info.hasLimit = true
		}
	}
	if v := h.Get(gatewire.HeaderRateLimitRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.remaining = n
			info.hasRemaining = true
		}
	}
	if v := h.Get(gatewire.HeaderRateLimitReset); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			info.resetAfter = time.Duration(secs * float64(time.Second))
		}
	}
	if v := h.Get(gatewire.HeaderRetryAfter); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			info.retryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	info.bucket = h.Get(gatewire.HeaderRateLimitBucket)
	info.global = h.Get(gatewire.HeaderRateLimitGlobal) == "true"
	return info
}

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/metrics"
)

// Bucket defines rate limit parameters.
type Bucket struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultBuckets are the per-client limits of the public endpoints.
var DefaultBuckets = map[string]Bucket{
	"predict":    {MaxRequests: 30, Window: time.Minute},
	"complaints": {MaxRequests: 60, Window: time.Minute},
	"stream":     {MaxRequests: 10, Window: time.Minute},
	"auth":       {MaxRequests: 100, Window: 15 * time.Minute},
}

var fallbackBucket = Bucket{MaxRequests: 60, Window: time.Minute}

// Store records hits in a sliding window. Allow reports whether a hit at now
// fits in the bucket and, when it does not, how long until it would.
type Store interface {
	Allow(ctx context.Context, key string, bucket Bucket, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// Limiter applies named buckets per client IP.
type Limiter struct {
	store   Store
	clock   clockwork.Clock
	buckets map[string]Bucket
	metrics *metrics.RateLimitMetrics
	logger  *slog.Logger
}

// New creates a Limiter over store with DefaultBuckets. m may be nil.
func New(store Store, clock clockwork.Clock, m *metrics.RateLimitMetrics, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:   store,
		clock:   clock,
		buckets: DefaultBuckets,
		metrics: m,
		logger:  logger,
	}
}

// WithBuckets replaces the bucket table. It panics on a bucket that admits
// no request or has no window.
func (l *Limiter) WithBuckets(buckets map[string]Bucket) *Limiter {
	for name, b := range buckets {
		if b.MaxRequests <= 0 || b.Window <= 0 {
			panic(fmt.Sprintf("ratelimit: bucket %q needs positive MaxRequests and Window, got %d per %s", name, b.MaxRequests, b.Window))
		}
	}
	l.buckets = buckets
	return l
}

// MaxWindow returns the longest window of the bucket table, the age after
// which a client's hits no longer count anywhere.
func (l *Limiter) MaxWindow() time.Duration {
	longest := fallbackBucket.Window
	for _, b := range l.buckets {
		if b.Window > longest {
			longest = b.Window
		}
	}
	return longest
}

func (l *Limiter) bucket(name string) Bucket {
	if b, ok := l.buckets[name]; ok {
		return b
	}
	return fallbackBucket
}

// Check writes a 429 response and returns true when the client of r is over
// the limit of the named bucket. Store failures let the request through.
func (l *Limiter) Check(w http.ResponseWriter, r *http.Request, bucketName string) bool {
	bucket := l.bucket(bucketName)
	key := bucketName + ":" + clientIP(r)

	allowed, retryAfter, err := l.store.Allow(r.Context(), key, bucket, l.clock.Now())
	if err != nil {
		l.logger.WarnContext(r.Context(), "rate limit store failed, allowing request", "bucket", bucketName, "err", err)
		if l.metrics != nil {
			l.metrics.StoreError.WithLabelValues(bucketName).Inc()
		}
		return false
	}
	if allowed {
		return false
	}

	if l.metrics != nil {
		l.metrics.Rejected.WithLabelValues(bucketName).Inc()
	}

	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	apperr.Write(w, r, l.logger, apperr.RateLimited("rate limited").WithContext("retry_after_seconds", secs))
	return true
}

// Middleware rejects requests over the limit of the named bucket.
func (l *Limiter) Middleware(bucketName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Check(w, r, bucketName) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers X-Real-IP, then the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

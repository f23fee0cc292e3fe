package logging

import (
	"time"

	"github.com/go-kit/log"
	"golang.org/x/time/rate"
)

// RateLimitedLogger wraps a Logger with a token-bucket limiter so a
// noisy condition (repeated client timeouts, repeated connection
// resets) can't flood standard output. Grounded on the pack's
// pkg/util.RateLimitedLogger, which pairs go-kit/log with
// golang.org/x/time/rate the same way.
type RateLimitedLogger struct {
	next    log.Logger
	limiter *rate.Limiter
}

// NewRateLimitedLogger returns a logger that forwards at most
// logsPerSecond calls per second to next, silently dropping the rest.
func NewRateLimitedLogger(logsPerSecond int, next log.Logger) *RateLimitedLogger {
	return &RateLimitedLogger{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), logsPerSecond),
	}
}

// Log implements log.Logger, dropping the call if the limiter's bucket
// is empty.
func (r *RateLimitedLogger) Log(keyvals ...interface{}) error {
	if !r.limiter.AllowN(time.Now(), 1) {
		return nil
	}
	return r.next.Log(keyvals...)
}

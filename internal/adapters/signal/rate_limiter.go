package signal

import "golang.org/x/time/rate"

// MessageLimiter throttles the inbound texts of one connection. A nil
// limiter allows everything.
type MessageLimiter struct {
	lim *rate.Limiter
}

// NewMessageLimiter returns nil when perSec is not positive.
func NewMessageLimiter(perSec float64, burst int) *MessageLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &MessageLimiter{lim: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (l *MessageLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.Allow()
}

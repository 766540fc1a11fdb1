package exchange

import (
	"errors"
	"fmt"
	"net"
)

// ErrTransient marks failures worth retrying with backoff: timeouts,
// connection drops, 5xx, rate limiting.
var ErrTransient = errors.New("transient exchange error")

// RejectionError is a definitive exchange rejection (invalid size, margin
// check failed, unknown instrument). Retrying cannot succeed; the caller
// must revert state instead.
type RejectionError struct {
	Code   string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("exchange rejected order (%s): %s", e.Code, e.Reason)
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

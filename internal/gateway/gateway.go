// Package gateway provides completion gateway clients: the single black-box
// call that turns an assembled context into raw completion text. The gateway
// never retries; policy for failed turns belongs to the caller.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// GatewayError wraps a failed generation call. Timeout distinguishes a
// bounded-wait expiry from an upstream rejection so callers can message the
// user differently.
type GatewayError struct {
	Op      string // provider operation, e.g. "openai.generate"
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Timeout
}

func wrapErr(op string, ctx context.Context, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded
	return &GatewayError{Op: op, Timeout: timeout, Err: err}
}

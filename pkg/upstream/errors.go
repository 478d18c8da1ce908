package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rhuss/tiefsee/pkg/api"
)

// MapNetworkError converts a network-level error (connection refused, timeout,
// DNS resolution failure) into an upstream transport error. The original
// error stays reachable through errors.Is and errors.As.
func MapNetworkError(err error) *api.APIError {
	if IsTimeout(err) {
		return api.NewUpstreamTransportError(fmt.Sprintf("upstream request timed out: %s", err.Error()), true).WithCause(err)
	}
	return api.NewUpstreamTransportError(fmt.Sprintf("upstream connection error: %s", err.Error()), false).WithCause(err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

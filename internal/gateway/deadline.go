// ABOUTME: Per-request deadline resolution for aggregate and streaming paths
// ABOUTME: Clamps client-requested timeouts to the configured ceiling

package gateway

import (
	"math"
	"time"
)

// resolveDeadline returns the effective timeout for a request. A client may
// ask for a shorter timeout than the configured ceiling but never a longer
// one; absent or non-positive requests get the ceiling. The comparison stays
// in float space because converting an absurd request to a Duration first
// would overflow into a negative value.
func resolveDeadline(requestedSeconds float64, ceiling time.Duration) time.Duration {
	if math.IsNaN(requestedSeconds) || requestedSeconds <= 0 {
		return ceiling
	}
	if requestedSeconds >= ceiling.Seconds() {
		return ceiling
	}
	return time.Duration(requestedSeconds * float64(time.Second))
}

package providers

import (
	"context"
	"time"
)

// CallAuditor records the outcome of individual provider calls, successful or
// not. Implementations must be non-blocking on failure.
type CallAuditor interface {
	RecordCall(ctx context.Context, info ProviderInfo, operation string, duration time.Duration, callErr error)
}

package pipeline

import (
	"errors"

	"scholarag/internal/providers"
)

// ErrEmptyQuery marks a request whose query normalized to nothing. The
// interaction is still logged before it is returned.
var ErrEmptyQuery = errors.New("query is empty after normalization")

// FailureKind buckets everything that can go wrong during an ask. Input,
// transient and permanent failures can ride an error out of Ask; citation
// and logging failures are always absorbed inside the pipeline and only
// show up in logs and counters.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureInput     FailureKind = "input"
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
	FailureCitation  FailureKind = "citation"
	FailureLogging   FailureKind = "logging"
)

// Classify buckets an error returned by Ask so the transport layer can pick
// a status without parsing messages.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrEmptyQuery):
		return FailureInput
	}
	switch providers.ClassifyError(err) {
	case providers.ErrorRate, providers.ErrorTransient:
		return FailureTransient
	default:
		return FailurePermanent
	}
}

package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StageObserver is notified after each pipeline stage finishes, successful or
// not. Implementations must not block and must not fail the request.
type StageObserver interface {
	OnStage(ctx context.Context, interactionID, stage string, d time.Duration, err error)
}

// LogObserver writes one structured line per finished stage.
type LogObserver struct {
	Log *logrus.Entry
}

func (o LogObserver) OnStage(ctx context.Context, interactionID, stage string, d time.Duration, err error) {
	_ = ctx
	entry := o.Log.WithFields(logrus.Fields{
		"interaction_id": interactionID,
		"stage":          stage,
		"duration_ms":    d.Milliseconds(),
	})
	if err != nil {
		kind := Classify(err)
		if stage == "log" {
			kind = FailureLogging
		}
		entry.WithError(err).WithField("failure_kind", string(kind)).Warn("stage failed")
		return
	}
	entry.Debug("stage complete")
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"scholarag/internal/providers"
)

type LLMCallRecord struct {
	Operation    string
	ProviderName string
	Model        string
	Status       string
	ErrorType    string
	Duration     time.Duration
}

// LLMAuditRepo keeps a best-effort audit trail of provider calls. Writes are
// fire-and-forget: a full audit table must never take the pipeline down.
type LLMAuditRepo struct {
	db  *DB
	log *logrus.Entry
}

func NewLLMAuditRepo(db *DB, log *logrus.Entry) *LLMAuditRepo {
	return &LLMAuditRepo{db: db, log: log}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls (operation, provider_name, model, status, error_type, duration_ms)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6)`,
		rec.Operation, rec.ProviderName, rec.Model, rec.Status, rec.ErrorType, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// RecordCall satisfies providers.CallAuditor.
func (r *LLMAuditRepo) RecordCall(ctx context.Context, info providers.ProviderInfo, operation string, duration time.Duration, callErr error) {
	rec := LLMCallRecord{
		Operation:    operation,
		ProviderName: info.Name,
		Model:        info.Model,
		Status:       "ok",
		Duration:     duration,
	}
	if callErr != nil {
		rec.Status = "error"
		rec.ErrorType = string(providers.ClassifyError(callErr))
	}
	if err := r.Insert(ctx, rec); err != nil && r.log != nil {
		r.log.WithError(err).Warn("failed to record llm call")
	}
}

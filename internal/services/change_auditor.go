package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"painel/internal/amqp"
	"painel/internal/core"
	applog "painel/internal/log"
)

// ChangeAuditor consumes record change notifications and writes an audit log
// line with the row as the store holds it now.
type ChangeAuditor struct {
	storage RecordRepository
	logger  *applog.Logger

	processed atomic.Int64
	missing   atomic.Int64
}

// AuditStats counts handled notifications.
type AuditStats struct {
	Processed int64
	Missing   int64
}

// NewChangeAuditor creates an auditor reading from storage.
func NewChangeAuditor(storage RecordRepository, logger *applog.Logger) *ChangeAuditor {
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	return &ChangeAuditor{
		storage: storage,
		logger:  logger.WithComponent(applog.ComponentAMQP),
	}
}

// HandleRecordChanged logs one notification. Returning an error requeues it.
func (a *ChangeAuditor) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	date, err := core.ParseDate(msg.Date)
	if err != nil {
		// Redelivery cannot fix a malformed date.
		a.logger.WarnContext(ctx, "Dropping change notification with invalid date",
			applog.FieldRecordDate, msg.Date, "error", err)
		a.processed.Add(1)
		return nil
	}

	if msg.Operation == amqp.OpDelete {
		a.logger.InfoContext(ctx, "Record removed",
			applog.FieldRecordDate, date.String(),
			applog.FieldOperation, msg.Operation,
			"changed_at", msg.Timestamp)
		a.processed.Add(1)
		return nil
	}

	records, err := a.storage.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load records for audit: %w", err)
	}

	for _, r := range core.Derive(records) {
		if !r.Date.Equal(date.Time) {
			continue
		}
		fields := applog.NewFields().
			WithRecord(r.Date.String(), r.Revenue.String(), r.Expense.String()).
			WithOperation(msg.Operation)
		fields["profit"] = r.Profit.String()
		fields["changed_at"] = msg.Timestamp
		a.logger.InfoContext(ctx, "Record saved", fields.ToSlice()...)
		a.processed.Add(1)
		return nil
	}

	// A later delete can overtake the upsert notification.
	a.logger.WarnContext(ctx, "Changed record no longer in store",
		applog.FieldRecordDate, date.String(),
		applog.FieldOperation, msg.Operation)
	a.missing.Add(1)
	a.processed.Add(1)
	return nil
}

// Stats returns counters since start.
func (a *ChangeAuditor) Stats() AuditStats {
	return AuditStats{Processed: a.processed.Load(), Missing: a.missing.Load()}
}

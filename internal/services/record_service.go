package services

import (
	"context"
	"fmt"
	"log/slog"

	"painel/internal/amqp"
	"painel/internal/core"
)

// RecordRepository is the persistence the service writes through.
type RecordRepository interface {
	LoadAll(ctx context.Context) ([]core.FinancialRecord, error)
	Upsert(ctx context.Context, rec core.FinancialRecord) error
	Delete(ctx context.Context, date core.Date) error
}

// ChangePublisher announces record changes to other processes.
type ChangePublisher interface {
	PublishRecordChanged(ctx context.Context, date, operation string) error
}

// RecordService orchestrates record writes across the store and the change
// notification queue. The store is the source of truth; notifications are
// best effort.
type RecordService struct {
	storage   RecordRepository
	publisher ChangePublisher
}

// NewRecordService builds the service. publisher may be nil.
func NewRecordService(storage RecordRepository, publisher ChangePublisher) *RecordService {
	return &RecordService{
		storage:   storage,
		publisher: publisher,
	}
}

// LoadAll returns every record ordered by date.
func (s *RecordService) LoadAll(ctx context.Context) ([]core.FinancialRecord, error) {
	return s.storage.LoadAll(ctx)
}

// Upsert saves the record and publishes a change notification.
func (s *RecordService) Upsert(ctx context.Context, rec core.FinancialRecord) error {
	if err := s.storage.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	s.publish(ctx, rec.Date, amqp.OpUpsert)
	return nil
}

// Delete removes the record and publishes a change notification.
func (s *RecordService) Delete(ctx context.Context, date core.Date) error {
	if err := s.storage.Delete(ctx, date); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.publish(ctx, date, amqp.OpDelete)
	return nil
}

func (s *RecordService) publish(ctx context.Context, date core.Date, op string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Change publisher not configured, skipping notification", "date", date.String(), "operation", op)
		return
	}
	if err := s.publisher.PublishRecordChanged(ctx, date.String(), op); err != nil {
		// The write already succeeded; a lost notification must not fail it.
		slog.ErrorContext(ctx, "Failed to publish record change",
			"date", date.String(), "operation", op, "error", err)
	}
}

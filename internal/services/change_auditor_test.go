package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"painel/internal/amqp"
	"painel/internal/core"
)

func TestChangeAuditor_HandleRecordChanged(t *testing.T) {
	repo := &fakeRepo{upserts: []core.FinancialRecord{
		{Date: core.NewDate(2024, 1, 1), Revenue: decimal.NewFromInt(1000), Expense: decimal.NewFromInt(400)},
	}}
	auditor := NewChangeAuditor(repo, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *amqp.RecordChangedMessage
	}{
		{"upsert present", amqp.NewRecordChangedMessage("2024-01-01", amqp.OpUpsert)},
		{"upsert gone", amqp.NewRecordChangedMessage("2024-02-01", amqp.OpUpsert)},
		{"delete", amqp.NewRecordChangedMessage("2024-01-01", amqp.OpDelete)},
		{"bad date", amqp.NewRecordChangedMessage("ontem", amqp.OpUpsert)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := auditor.HandleRecordChanged(ctx, tt.msg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	stats := auditor.Stats()
	if stats.Processed != 4 || stats.Missing != 1 {
		t.Errorf("stats = %+v, want 4 processed and 1 missing", stats)
	}
}

func TestChangeAuditor_StoreErrorRequeues(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	auditor := NewChangeAuditor(repo, nil)

	err := auditor.HandleRecordChanged(context.Background(), amqp.NewRecordChangedMessage("2024-01-01", amqp.OpUpsert))
	if err == nil {
		t.Fatal("expected error so the delivery is requeued")
	}
	if got := auditor.Stats().Processed; got != 0 {
		t.Errorf("processed = %d, want 0", got)
	}
}

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"painel/internal/amqp"
	"painel/internal/core"
)

type fakeRepo struct {
	upserts []core.FinancialRecord
	deletes []core.Date
	err     error
}

func (f *fakeRepo) LoadAll(context.Context) ([]core.FinancialRecord, error) {
	return f.upserts, f.err
}

func (f *fakeRepo) Upsert(_ context.Context, rec core.FinancialRecord) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, date core.Date) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, date)
	return nil
}

type published struct{ date, op string }

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) PublishRecordChanged(_ context.Context, date, op string) error {
	f.msgs = append(f.msgs, published{date, op})
	return f.err
}

func TestRecordService_PublishesAfterWrites(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := NewRecordService(repo, pub)
	ctx := context.Background()

	rec := core.FinancialRecord{Date: core.NewDate(2024, 1, 1), Revenue: decimal.NewFromInt(1000), Expense: decimal.NewFromInt(400)}
	if err := svc.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := svc.Delete(ctx, rec.Date); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []published{{"2024-01-01", amqp.OpUpsert}, {"2024-01-01", amqp.OpDelete}}
	if len(pub.msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(pub.msgs))
	}
	for i := range want {
		if pub.msgs[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, pub.msgs[i], want[i])
		}
	}
}

func TestRecordService_PublishFailureDoesNotFailWrite(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewRecordService(repo, &fakePublisher{err: errors.New("broker down")})

	if err := svc.Upsert(context.Background(), core.FinancialRecord{Date: core.NewDate(2024, 1, 1)}); err != nil {
		t.Fatalf("publish failure leaked into upsert: %v", err)
	}
	if len(repo.upserts) != 1 {
		t.Fatalf("record not stored")
	}
}

func TestRecordService_StoreFailureSkipsPublish(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewRecordService(&fakeRepo{err: core.ErrConnection}, pub)

	err := svc.Delete(context.Background(), core.NewDate(2024, 1, 1))
	if !errors.Is(err, core.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Fatalf("published %d messages for a failed write", len(pub.msgs))
	}
}

func TestRecordService_NilPublisher(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewRecordService(repo, nil)
	if err := svc.Upsert(context.Background(), core.FinancialRecord{Date: core.NewDate(2024, 1, 1)}); err != nil {
		t.Fatalf("upsert without publisher: %v", err)
	}
}

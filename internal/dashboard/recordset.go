package dashboard

import (
	"context"
	"fmt"
	"sync"

	"painel/internal/core"
)

// Store is the record persistence the controller depends on.
type Store interface {
	LoadAll(ctx context.Context) ([]core.FinancialRecord, error)
	Upsert(ctx context.Context, rec core.FinancialRecord) error
	Delete(ctx context.Context, date core.Date) error
}

// RecordSet is the controller's in-memory copy of the table with profit
// derived. It is only ever replaced whole.
type RecordSet struct {
	mu      sync.RWMutex
	records []core.DerivedRecord
	loaded  bool
}

// Reload fetches every record from the store and replaces the set.
// On failure the previous contents are kept.
func (rs *RecordSet) Reload(ctx context.Context, store Store) error {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("reload records: %w", err)
	}
	derived := core.Derive(records)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.records = derived
	rs.loaded = true
	return nil
}

// Loaded reports whether at least one reload succeeded.
func (rs *RecordSet) Loaded() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.loaded
}

// Snapshot returns a copy of the current records.
func (rs *RecordSet) Snapshot() []core.DerivedRecord {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]core.DerivedRecord, len(rs.records))
	copy(out, rs.records)
	return out
}

// FilterRange keeps the records whose date lies in [start, end]. A zero bound
// is open. start after end yields an empty result.
func FilterRange(records []core.DerivedRecord, start, end core.Date) []core.DerivedRecord {
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return []core.DerivedRecord{}
	}
	out := make([]core.DerivedRecord, 0, len(records))
	for _, r := range records {
		if !start.IsZero() && r.Date.Before(start) {
			continue
		}
		if !end.IsZero() && r.Date.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

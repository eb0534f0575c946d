package dashboard

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"painel/internal/auth"
	"painel/internal/core"
	"painel/internal/services"
)

// memStore is an in-memory Store keyed by date.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]core.FinancialRecord
	writes  int
	failing bool
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]core.FinancialRecord{}}
}

func (m *memStore) LoadAll(context.Context) ([]core.FinancialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, core.ErrConnection
	}
	out := make([]core.FinancialRecord, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, rec core.FinancialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return core.ErrConnection
	}
	m.writes++
	m.rows[rec.Date.String()] = rec
	return nil
}

func (m *memStore) Delete(_ context.Context, date core.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return core.ErrConnection
	}
	m.writes++
	delete(m.rows, date.String())
	return nil
}

func newTestController(t *testing.T) (*Controller, *memStore, *auth.Gate) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	gate := auth.NewGate(auth.SingleAccount("admin", string(hash)), auth.NewSessionStore([]byte("secret"), time.Hour))
	store := newMemStore()
	return New(store, gate), store, gate
}

func login(t *testing.T, c *Controller) *auth.Session {
	t.Helper()
	out, err := c.Handle(context.Background(), nil, NewEvent(EventLoginSubmit, "username", "admin", "password", "s3nha"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return out.Session
}

func TestRoutesTable(t *testing.T) {
	c, _, _ := newTestController(t)
	routes := c.Routes()
	want := []EventKey{
		EventDeleteSubmit, EventExportClick, EventFiltersChange, EventLoginSubmit,
		EventLogoutClick, EventRecordSubmit, EventRecordsLoad, EventSummaryLoad,
	}
	if len(routes) != len(want) {
		t.Fatalf("expected %d routes, got %d: %v", len(want), len(routes), routes)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("route %d = %s, want %s", i, routes[i], want[i])
		}
	}

	_, err := c.Handle(context.Background(), nil, NewEvent(EventKey{Source: "graph", Kind: "hover"}))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestInsertChartAndExportScenario(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	sess := login(t, c)

	out, err := c.Handle(ctx, sess, NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "1000", "despesas", "400"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if out.Message == nil || out.Message.Kind != MessageSuccess {
		t.Fatalf("expected success message, got %+v", out.Message)
	}
	if len(out.Records) != 1 {
		t.Fatalf("expected reloaded set of 1, got %d", len(out.Records))
	}

	out, err = c.Handle(ctx, sess, NewEvent(EventFiltersChange, "metric", "lucros", "start", "2024-01-01", "end", "2024-01-01"))
	if err != nil {
		t.Fatalf("filters: %v", err)
	}
	if len(out.Figures) != 2 {
		t.Fatalf("expected two figures, got %d", len(out.Figures))
	}
	series := out.Figures[0]
	if series.ID != FigureTimeSeries || len(series.Data) != 1 {
		t.Fatalf("unexpected time series figure: %+v", series)
	}
	if len(series.Data[0].Y) != 1 || series.Data[0].Y[0] != 600 || series.Data[0].X[0] != "2024-01-01" {
		t.Fatalf("expected single point (2024-01-01, 600), got x=%v y=%v", series.Data[0].X, series.Data[0].Y)
	}
	if series.Layout.Title != "Lucros ao longo do tempo" {
		t.Errorf("title = %q", series.Layout.Title)
	}

	out, err = c.Handle(ctx, sess, NewEvent(EventExportClick))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Download == nil || out.Download.Filename != "dados_financeiros.csv" {
		t.Fatalf("unexpected download: %+v", out.Download)
	}
	body := string(out.Download.Body)
	if !strings.HasPrefix(body, "data,receitas,despesas,lucros\n") {
		t.Fatalf("missing header: %q", body)
	}
	if !strings.Contains(body, "2024-01-01,1000,400,600\n") {
		t.Fatalf("missing row: %q", body)
	}
}

func TestUpsertReplacesInMemorySet(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	sess := login(t, c)

	for _, rev := range []string{"100", "250"} {
		if _, err := c.Handle(ctx, sess, NewEvent(EventRecordSubmit, "data", "2024-05-01", "receitas", rev, "despesas", "50")); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	records := c.Records()
	if len(records) != 1 || records[0].Revenue.String() != "250" || records[0].Profit.String() != "200" {
		t.Fatalf("unexpected records after replace: %+v", records)
	}
}

func TestMutationsRequireSession(t *testing.T) {
	c, store, _ := newTestController(t)
	ctx := context.Background()
	expired := &auth.Session{ID: "x", UserID: "admin", Authenticated: true, ExpiresAt: time.Now().Add(-time.Minute)}

	events := []Event{
		NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "1", "despesas", "1"),
		NewEvent(EventDeleteSubmit, "data", "2024-01-01"),
		NewEvent(EventExportClick),
		NewEvent(EventRecordsLoad),
	}
	for _, sess := range []*auth.Session{nil, expired} {
		for _, ev := range events {
			out, err := c.Handle(ctx, sess, ev)
			if !errors.Is(err, auth.ErrNotAuthenticated) {
				t.Fatalf("%s: error = %v, want ErrNotAuthenticated", ev.Key, err)
			}
			if out.Download != nil || out.Records != nil {
				t.Fatalf("%s produced output without a session", ev.Key)
			}
		}
	}
	if store.writes != 0 {
		t.Fatalf("store written %d times without a session", store.writes)
	}
}

func TestRecordSubmitValidation(t *testing.T) {
	c, store, _ := newTestController(t)
	ctx := context.Background()
	sess := login(t, c)

	cases := []Event{
		NewEvent(EventRecordSubmit, "receitas", "1", "despesas", "1"),
		NewEvent(EventRecordSubmit, "data", "2024-01-01", "despesas", "1"),
		NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "1"),
		NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "abc", "despesas", "1"),
		NewEvent(EventRecordSubmit, "data", "01/01/2024", "receitas", "1", "despesas", "1"),
		NewEvent(EventDeleteSubmit),
	}
	for _, ev := range cases {
		out, err := c.Handle(ctx, sess, ev)
		if !core.IsValidation(err) {
			t.Fatalf("%v: expected validation error, got %v", ev.Fields, err)
		}
		if out.Message == nil || out.Message.Kind != MessageError {
			t.Fatalf("%v: expected error message, got %+v", ev.Fields, out.Message)
		}
	}
	if store.writes != 0 {
		t.Fatalf("invalid input reached the store %d times", store.writes)
	}
}

func TestDeleteMissingDateSucceeds(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	sess := login(t, c)

	if _, err := c.Handle(ctx, sess, NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "10", "despesas", "5")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	out, err := c.Handle(ctx, sess, NewEvent(EventDeleteSubmit, "data", "2099-01-01"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(out.Records) != 1 {
		t.Fatalf("delete of a missing date changed the set: %d", len(out.Records))
	}
	if out.Message == nil || out.Message.Kind != MessageSuccess {
		t.Fatalf("expected confirmation, got %+v", out.Message)
	}
}

func TestInvertedRangeIsEmpty(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	sess := login(t, c)
	for _, d := range []string{"2024-01-01", "2024-01-15", "2024-02-01"} {
		if _, err := c.Handle(ctx, sess, NewEvent(EventRecordSubmit, "data", d, "receitas", "10", "despesas", "5")); err != nil {
			t.Fatalf("insert %s: %v", d, err)
		}
	}

	out, err := c.Handle(ctx, nil, NewEvent(EventFiltersChange, "metric", "receitas", "start", "2024-02-01", "end", "2024-01-01"))
	if err != nil {
		t.Fatalf("inverted range returned error: %v", err)
	}
	for _, f := range out.Figures {
		if len(f.Data[0].X) != 0 || len(f.Data[0].Y) != 0 {
			t.Fatalf("figure %s not empty: %+v", f.ID, f.Data[0])
		}
	}

	out, err = c.Handle(ctx, nil, NewEvent(EventFiltersChange, "metric", "despesas", "start", "2024-01-15", "end", "2024-02-01"))
	if err != nil {
		t.Fatalf("filters: %v", err)
	}
	if got := out.Figures[0].Data[0].X; len(got) != 2 || got[0] != "2024-01-15" || got[1] != "2024-02-01" {
		t.Fatalf("inclusive bounds not honoured: %v", got)
	}
	if got := out.Figures[1].Data[0]; len(got.X) != 2 || got.X[0] != "2024-01" || got.Y[0] != 5 || got.Y[1] != 5 {
		t.Fatalf("unexpected monthly comparison: %+v", got)
	}
}

func TestFiltersRejectUnknownMetric(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Handle(context.Background(), nil, NewEvent(EventFiltersChange, "metric", "ebitda"))
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWrongPasswordTwice(t *testing.T) {
	c, _, gate := newTestController(t)
	for i := 0; i < 2; i++ {
		out, err := c.Handle(context.Background(), nil, NewEvent(EventLoginSubmit, "username", "admin", "password", "errada"))
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: error = %v, want ErrInvalidCredentials", i+1, err)
		}
		if out.Session != nil || out.Navigate != "" {
			t.Fatalf("attempt %d: failed login produced session or navigation: %+v", i+1, out)
		}
		if out.Message == nil || out.Message.Kind != MessageError {
			t.Fatalf("attempt %d: expected error message", i+1)
		}
	}
	if gate.Sessions().Len() != 0 {
		t.Fatal("failed logins established a session")
	}
}

func TestLoginAndLogoutNavigation(t *testing.T) {
	c, _, gate := newTestController(t)
	ctx := context.Background()
	out, err := c.Handle(ctx, nil, NewEvent(EventLoginSubmit, "username", "admin", "password", "s3nha"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if out.Navigate != "/dashboard" || out.Session == nil {
		t.Fatalf("unexpected login output: %+v", out)
	}

	out, err = c.Handle(ctx, out.Session, NewEvent(EventLogoutClick))
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if out.Navigate != "/" || gate.Sessions().Len() != 0 {
		t.Fatalf("logout did not clear session: %+v", out)
	}
}

func TestStoreFailureIsReported(t *testing.T) {
	c, store, _ := newTestController(t)
	ctx := context.Background()
	sess := login(t, c)
	store.failing = true

	out, err := c.Handle(ctx, sess, NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "1", "despesas", "1"))
	if !errors.Is(err, core.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if out.Message == nil || out.Message.Kind != MessageError || strings.Contains(out.Message.Text, "store") {
		t.Fatalf("expected generic failure message, got %+v", out.Message)
	}

	if _, err := c.Handle(ctx, nil, NewEvent(EventSummaryLoad)); !errors.Is(err, core.ErrConnection) {
		t.Fatalf("summary on unreachable store: %v", err)
	}
}

func TestSummary(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	sess := login(t, c)
	for _, ev := range []Event{
		NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "1000", "despesas", "400"),
		NewEvent(EventRecordSubmit, "data", "2024-01-02", "receitas", "1.234,56", "despesas", "34,56"),
	} {
		if _, err := c.Handle(ctx, sess, ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	out, err := c.Handle(ctx, nil, NewEvent(EventSummaryLoad))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got := core.FormatBRL(out.Summary.Profit); got != "R$ 1,800.00" {
		t.Fatalf("profit total = %s", got)
	}
	if out.Summary.Count != 2 {
		t.Fatalf("count = %d", out.Summary.Count)
	}
}

// gatedStore holds its first LoadAll until release is closed.
type gatedStore struct {
	*memStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) LoadAll(ctx context.Context) ([]core.FinancialRecord, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.memStore.LoadAll(ctx)
}

func TestConcurrentSubmitsKeepLatestSet(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	gate := auth.NewGate(auth.SingleAccount("admin", string(hash)), auth.NewSessionStore([]byte("secret"), time.Hour))
	store := &gatedStore{memStore: newMemStore(), entered: make(chan struct{}), release: make(chan struct{})}
	c := New(store, gate)
	sess := login(t, c)
	ctx := context.Background()

	submit := func(date string) <-chan error {
		done := make(chan error, 1)
		go func() {
			_, err := c.Handle(ctx, sess, NewEvent(EventRecordSubmit, "data", date, "receitas", "10", "despesas", "5"))
			done <- err
		}()
		return done
	}

	first := submit("2024-01-01")
	<-store.entered
	second := submit("2024-01-02")

	select {
	case err := <-second:
		t.Fatalf("second submit finished while the first reload was in flight (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	for _, done := range []<-chan error{first, second} {
		if err := <-done; err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	stored, _ := store.memStore.LoadAll(ctx)
	if got := c.Records(); len(got) != len(stored) || len(got) != 2 {
		t.Fatalf("in-memory set has %d rows, store has %d", len(got), len(stored))
	}
}

type failingWrites struct{ *memStore }

func (failingWrites) Upsert(context.Context, core.FinancialRecord) error { return core.ErrConnection }

func TestStoreErrorsWrappedOnce(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	gate := auth.NewGate(auth.SingleAccount("admin", string(hash)), auth.NewSessionStore([]byte("secret"), time.Hour))
	c := New(services.NewRecordService(failingWrites{newMemStore()}, nil), gate)
	sess := login(t, c)

	_, err = c.Handle(context.Background(), sess, NewEvent(EventRecordSubmit, "data", "2024-01-01", "receitas", "1", "despesas", "1"))
	if !errors.Is(err, core.ErrConnection) {
		t.Fatalf("error = %v, want ErrConnection", err)
	}
	if n := strings.Count(err.Error(), "save record"); n != 1 {
		t.Errorf("error %q wraps the save context %d times", err, n)
	}
}

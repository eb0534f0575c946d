// Package dashboard reacts to user input events on the dashboard pages and
// produces the derived outputs: chart figures, confirmation messages, CSV
// downloads and navigation directives.
//
// Handlers are registered once in an explicit (source, kind) table so the
// dispatch graph can be inspected and tested without a running server.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"painel/internal/auth"
	"painel/internal/core"
	applog "painel/internal/log"
	"painel/internal/router"
)

// ErrUnknownEvent is returned for an event with no registered handler.
var ErrUnknownEvent = errors.New("unknown event")

// EventKey identifies an input: the component that fired it and what happened.
type EventKey struct {
	Source string
	Kind   string
}

func (k EventKey) String() string {
	return k.Source + "." + k.Kind
}

// Registered events.
var (
	EventFiltersChange = EventKey{Source: "filters", Kind: "change"}
	EventRecordSubmit  = EventKey{Source: "record-form", Kind: "submit"}
	EventDeleteSubmit  = EventKey{Source: "delete-form", Kind: "submit"}
	EventExportClick   = EventKey{Source: "export", Kind: "click"}
	EventLoginSubmit   = EventKey{Source: "login-form", Kind: "submit"}
	EventLogoutClick   = EventKey{Source: "logout", Kind: "click"}
	EventSummaryLoad   = EventKey{Source: "summary", Kind: "load"}
	EventRecordsLoad   = EventKey{Source: "records", Kind: "load"}
)

// Event is one user input with its form values.
type Event struct {
	Key    EventKey
	Fields map[string]string
}

// NewEvent builds an event from key/value pairs.
func NewEvent(key EventKey, kv ...string) Event {
	ev := Event{Key: key, Fields: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		ev.Fields[kv[i]] = kv[i+1]
	}
	return ev
}

// Field returns a trimmed form value.
func (e Event) Field(name string) string {
	return strings.TrimSpace(e.Fields[name])
}

// MessageKind classifies a user-visible message.
type MessageKind string

const (
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
)

// Message is text shown to the user after an event.
type Message struct {
	Kind MessageKind
	Text string
}

// Download is a file handed to the browser.
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Output is everything an event produced.
type Output struct {
	Figures  []Figure
	Records  []core.DerivedRecord
	Summary  *core.Summary
	Message  *Message
	Download *Download
	// Session is set when the event opened a session.
	Session *auth.Session
	// Navigate is a path the client should move to.
	Navigate string
}

// HandlerFunc handles one kind of event.
type HandlerFunc func(ctx context.Context, sess *auth.Session, ev Event) (Output, error)

// Authenticator is the part of the auth gate the controller uses.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Session, error)
	Logout(ctx context.Context, sess *auth.Session)
	RequireAuthenticated(sess *auth.Session) error
}

// Controller owns the record set and dispatches events to handlers.
type Controller struct {
	store    Store
	gate     Authenticator
	records  *RecordSet
	handlers map[EventKey]HandlerFunc

	// mu serializes store writes with reloads so a slower load can never
	// replace the result of a later mutation.
	mu sync.Mutex
}

// New builds a controller and registers every handler.
func New(store Store, gate Authenticator) *Controller {
	c := &Controller{
		store:   store,
		gate:    gate,
		records: &RecordSet{},
	}
	c.handlers = map[EventKey]HandlerFunc{
		EventFiltersChange: c.handleFiltersChange,
		EventRecordSubmit:  c.handleRecordSubmit,
		EventDeleteSubmit:  c.handleDeleteSubmit,
		EventExportClick:   c.handleExport,
		EventLoginSubmit:   c.handleLogin,
		EventLogoutClick:   c.handleLogout,
		EventSummaryLoad:   c.handleSummary,
		EventRecordsLoad:   c.handleRecords,
	}
	return c
}

// Routes lists the registered event keys in a stable order.
func (c *Controller) Routes() []EventKey {
	keys := make([]EventKey, 0, len(c.handlers))
	for k := range c.handlers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Reload refreshes the record set from the store.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records.Reload(ctx, c.store)
}

// Records returns the current derived record set.
func (c *Controller) Records() []core.DerivedRecord {
	return c.records.Snapshot()
}

// Handle dispatches ev. On failure the returned Output carries the message
// to show the user alongside the error.
func (c *Controller) Handle(ctx context.Context, sess *auth.Session, ev Event) (Output, error) {
	h, ok := c.handlers[ev.Key]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Key)
	}

	out, err := h(ctx, sess, ev)
	if err != nil {
		if out.Message == nil {
			msg := MessageFor(err)
			out.Message = &msg
		}
		level, errType := slog.LevelError, applog.ErrorTypeDatabase
		switch {
		case core.IsValidation(err):
			level, errType = slog.LevelWarn, applog.ErrorTypeValidation
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotAuthenticated):
			level, errType = slog.LevelWarn, applog.ErrorTypeAuth
		}
		fields := applog.NewFields().
			WithComponent(applog.ComponentDashboard).
			WithEvent(ev.Key.Source, ev.Key.Kind).
			WithError(err)
		fields["error_type"] = errType
		applog.FromContext(ctx).Log(ctx, level, "Dashboard event failed", fields.ToSlice()...)
		return out, err
	}
	return out, nil
}

// MessageFor maps an event error to the text shown to the user.
func MessageFor(err error) Message {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return Message{Kind: MessageError, Text: "Dados inválidos: " + ve.Error()}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Message{Kind: MessageError, Text: "Usuário ou senha inválidos."}
	case errors.Is(err, auth.ErrNotAuthenticated):
		return Message{Kind: MessageError, Text: "Faça login para continuar."}
	default:
		return Message{Kind: MessageError, Text: "Falha ao acessar os dados. Tente novamente."}
	}
}

// mutate runs write and the reload that follows it as one step and returns
// the refreshed set.
func (c *Controller) mutate(ctx context.Context, write func() error) ([]core.DerivedRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := write(); err != nil {
		return nil, err
	}
	if err := c.records.Reload(ctx, c.store); err != nil {
		return nil, err
	}
	return c.records.Snapshot(), nil
}

func (c *Controller) ensureLoaded(ctx context.Context) error {
	if c.records.Loaded() {
		return nil
	}
	return c.Reload(ctx)
}

func (c *Controller) handleFiltersChange(ctx context.Context, _ *auth.Session, ev Event) (Output, error) {
	metric, err := core.ParseMetric(ev.Field("metric"))
	if err != nil {
		return Output{}, err
	}
	start, err := optionalDate(ev.Field("start"), "start")
	if err != nil {
		return Output{}, err
	}
	end, err := optionalDate(ev.Field("end"), "end")
	if err != nil {
		return Output{}, err
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return Output{}, err
	}

	selected := FilterRange(c.records.Snapshot(), start, end)
	return Output{
		Figures: []Figure{
			TimeSeries(selected, metric),
			MonthlyComparison(selected, metric),
		},
	}, nil
}

func (c *Controller) handleRecordSubmit(ctx context.Context, sess *auth.Session, ev Event) (Output, error) {
	if err := c.gate.RequireAuthenticated(sess); err != nil {
		return Output{}, err
	}

	rec, err := recordFromEvent(ev)
	if err != nil {
		return Output{}, err
	}
	records, err := c.mutate(ctx, func() error { return c.store.Upsert(ctx, rec) })
	if err != nil {
		return Output{}, err
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogRecordChanged(ctx, applog.OpUpsert, rec.Date.String(), len(records))
	return Output{
		Records: records,
		Message: &Message{Kind: MessageSuccess, Text: fmt.Sprintf("Registro de %s salvo com sucesso.", rec.Date)},
	}, nil
}

func (c *Controller) handleDeleteSubmit(ctx context.Context, sess *auth.Session, ev Event) (Output, error) {
	if err := c.gate.RequireAuthenticated(sess); err != nil {
		return Output{}, err
	}

	date, err := core.ParseDate(ev.Field("data"))
	if err != nil {
		return Output{}, err
	}
	records, err := c.mutate(ctx, func() error { return c.store.Delete(ctx, date) })
	if err != nil {
		return Output{}, err
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogRecordChanged(ctx, applog.OpDelete, date.String(), len(records))
	return Output{
		Records: records,
		Message: &Message{Kind: MessageSuccess, Text: fmt.Sprintf("Registro de %s removido.", date)},
	}, nil
}

func (c *Controller) handleExport(ctx context.Context, sess *auth.Session, _ Event) (Output, error) {
	if err := c.gate.RequireAuthenticated(sess); err != nil {
		return Output{}, err
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return Output{}, err
	}

	records := c.records.Snapshot()
	body, err := ExportCSV(records)
	if err != nil {
		return Output{}, err
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentDashboard).InfoContext(ctx, "Records exported",
		applog.FieldOperation, applog.OpExport, applog.FieldRecordCount, len(records))
	return Output{
		Download: &Download{Filename: ExportFilename, ContentType: ExportContentType, Body: body},
	}, nil
}

func (c *Controller) handleLogin(ctx context.Context, _ *auth.Session, ev Event) (Output, error) {
	sess, err := c.gate.Login(ctx, ev.Field("username"), ev.Fields["password"])
	if err != nil {
		return Output{}, err
	}
	return Output{Session: sess, Navigate: router.PathDashboard}, nil
}

func (c *Controller) handleLogout(ctx context.Context, sess *auth.Session, _ Event) (Output, error) {
	c.gate.Logout(ctx, sess)
	return Output{Navigate: router.PathLanding}, nil
}

func (c *Controller) handleSummary(ctx context.Context, _ *auth.Session, _ Event) (Output, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return Output{}, err
	}
	summary := core.Summarize(c.records.Snapshot())
	return Output{Summary: &summary}, nil
}

func (c *Controller) handleRecords(ctx context.Context, sess *auth.Session, _ Event) (Output, error) {
	if err := c.gate.RequireAuthenticated(sess); err != nil {
		return Output{}, err
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return Output{}, err
	}
	return Output{Records: c.records.Snapshot()}, nil
}

func recordFromEvent(ev Event) (core.FinancialRecord, error) {
	date, err := core.ParseDate(ev.Field("data"))
	if err != nil {
		return core.FinancialRecord{}, err
	}
	revenue, err := requiredAmount(ev, "receitas")
	if err != nil {
		return core.FinancialRecord{}, err
	}
	expense, err := requiredAmount(ev, "despesas")
	if err != nil {
		return core.FinancialRecord{}, err
	}
	return core.FinancialRecord{Date: date, Revenue: revenue, Expense: expense}, nil
}

func optionalDate(s, field string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return d, nil
}

func requiredAmount(ev Event, field string) (decimal.Decimal, error) {
	s := ev.Field(field)
	if s == "" {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: "required"}
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: "not a number"}
	}
	return d, nil
}

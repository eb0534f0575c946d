package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"painel/internal/auth"
	"painel/internal/core"
	"painel/internal/dashboard"
	applog "painel/internal/log"
	"painel/internal/router"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{"templates": "ok"}

	if s.store == nil {
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	// A lost broker degrades notifications only; the dashboard stays ready.
	switch {
	case s.broker == nil:
		checks["amqp"] = "disabled"
	case s.broker.IsOpen():
		checks["amqp"] = "ok"
	default:
		checks["amqp"] = "closed"
	}

	checks["sessions"] = map[string]any{"active": s.gate.Sessions().Len()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_requests_failed_total", "HTTP requests answered with a 5xx status", "counter", traceMetrics.FailedRequests)
	metric("financial_records", "Records in the loaded record set", "gauge", len(s.controller.Records()))
	metric("active_sessions", "Live authenticated sessions", "gauge", s.gate.Sessions().Len())
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "Requests rejected by method", "counter", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", int64(time.Since(s.started).Seconds()))
}

// handlePage renders whichever view the router selects for the path.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFrom(r)
	res := router.Resolve(r.URL.Path, sess)
	if res.IsRedirect() {
		redirect(w, r, res.RedirectTo)
		return
	}

	data := s.newPage(r, sess)
	switch res.View {
	case router.Login:
		data.Title = "Entrar · Dashboard Financeiro"
		s.render(w, r, http.StatusOK, "login.html", data)

	case router.Dashboard:
		out, err := s.controller.Handle(r.Context(), sess, dashboard.NewEvent(dashboard.EventRecordsLoad))
		if err != nil {
			data.Message = out.Message
		}
		data.Title = "Dashboard Financeiro"
		data.Metrics = metricOptions(core.MetricRevenue)
		data.Table = newRecordTable(out.Records, false)
		if n := len(out.Records); n > 0 {
			data.RangeStart = out.Records[0].Date.String()
			data.RangeEnd = out.Records[n-1].Date.String()
		}
		s.render(w, r, http.StatusOK, "dashboard.html", data)

	default:
		out, err := s.controller.Handle(r.Context(), sess, dashboard.NewEvent(dashboard.EventSummaryLoad))
		if err != nil {
			data.Message = out.Message
		}
		if out.Summary != nil {
			data.Summary = newSummaryView(*out.Summary)
		}
		data.Title = "Dashboard Financeiro"
		s.render(w, r, http.StatusOK, "landing.html", data)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	fields, err := parseFields(r, "username", "password")
	if err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}

	out, err := s.controller.Handle(r.Context(), nil, dashboard.NewEvent(dashboard.EventLoginSubmit, fields...))
	if err != nil {
		if isHTMX(r) {
			s.writeMessage(w, http.StatusUnauthorized, out.Message, nil, nil)
			return
		}
		data := s.newPage(r, nil)
		data.Title = "Entrar · Dashboard Financeiro"
		data.Message = out.Message
		s.render(w, r, http.StatusUnauthorized, "login.html", data)
		return
	}

	s.setSessionCookie(w, out.Session)
	redirect(w, r, out.Navigate)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	out, _ := s.controller.Handle(r.Context(), s.sessionFrom(r), dashboard.NewEvent(dashboard.EventLogoutClick))
	s.clearSessionCookie(w)
	if out.Navigate == "" {
		out.Navigate = router.PathLanding
	}
	redirect(w, r, out.Navigate)
}

// handleCharts answers a filter change with the figure JSON for both charts.
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFrom(r)
	if res := router.Resolve(router.PathDashboard, sess); res.IsRedirect() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Faça login para continuar.", "redirect": res.RedirectTo})
		return
	}

	q := r.URL.Query()
	ev := dashboard.NewEvent(dashboard.EventFiltersChange,
		"metric", q.Get("metric"),
		"start", q.Get("start"),
		"end", q.Get("end"),
	)
	out, err := s.controller.Handle(r.Context(), sess, ev)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": dashboard.MessageFor(err).Text})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"figures": out.Figures})
}

// handleRecords renders the records table partial.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	out, err := s.controller.Handle(r.Context(), s.sessionFrom(r), dashboard.NewEvent(dashboard.EventRecordsLoad))
	if err != nil {
		s.writeEventError(w, r, err, out)
		return
	}
	body, err := s.renderPartial("records_table", newRecordTable(out.Records, false))
	if err != nil {
		s.renderFailed(w, r, "records_table", err)
		return
	}
	NewHTMXResponse().BodyHTML(string(body)).Write(w)
}

func (s *Server) handleRecordSubmit(w http.ResponseWriter, r *http.Request) {
	fields, err := parseFields(r, "data", "receitas", "despesas")
	if err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}
	out, err := s.controller.Handle(r.Context(), s.sessionFrom(r), dashboard.NewEvent(dashboard.EventRecordSubmit, fields...))
	s.writeMutation(w, r, out, err, "upsert", valueOf(fields, "data"))
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	fields, err := parseFields(r, "data")
	if err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}
	out, err := s.controller.Handle(r.Context(), s.sessionFrom(r), dashboard.NewEvent(dashboard.EventDeleteSubmit, fields...))
	s.writeMutation(w, r, out, err, "delete", valueOf(fields, "data"))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	out, err := s.controller.Handle(r.Context(), s.sessionFrom(r), dashboard.NewEvent(dashboard.EventExportClick))
	if err != nil {
		s.writeEventError(w, r, err, out)
		return
	}
	NewHTMXResponse().
		Header("Content-Type", out.Download.ContentType).
		Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, out.Download.Filename)).
		Body(out.Download.Body).
		Write(w)
}

// writeMutation answers a record form: the message replaces #mensagem and
// the refreshed table is swapped out of band.
func (s *Server) writeMutation(w http.ResponseWriter, r *http.Request, out dashboard.Output, err error, op, date string) {
	if err != nil {
		s.writeEventError(w, r, err, out)
		return
	}

	table, rerr := s.renderPartial("records_table", newRecordTable(out.Records, true))
	if rerr != nil {
		s.renderFailed(w, r, "records_table", rerr)
		return
	}
	b := NewHTMXResponse().
		TriggerRecordsChanged(date, op).
		TriggerFormReset().
		TriggerSuccessNotification(out.Message.Text)
	s.writeMessage(w, http.StatusOK, out.Message, b, table)
}

// writeEventError maps a controller failure onto the response.
func (s *Server) writeEventError(w http.ResponseWriter, r *http.Request, err error, out dashboard.Output) {
	if errors.Is(err, auth.ErrNotAuthenticated) {
		redirect(w, r, router.PathLogin)
		return
	}
	b := NewHTMXResponse()
	if out.Message != nil {
		b.TriggerErrorNotification(out.Message.Text)
	}
	s.writeMessage(w, statusFor(err), out.Message, b, nil)
}

// writeMessage renders the #mensagem partial followed by any out-of-band
// fragments.
func (s *Server) writeMessage(w http.ResponseWriter, status int, msg *dashboard.Message, b *HTMXResponseBuilder, oob []byte) {
	if b == nil {
		b = NewHTMXResponse()
	}
	body, err := s.renderPartial("message", msg)
	if err != nil {
		s.logger.Error("Message template execution failed", applog.FieldError, err)
		InternalServerError("Erro interno").Write(w)
		return
	}
	b.Status(status).BodyHTML(string(body) + string(oob)).Write(w)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data *page) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.renderFailed(w, r, name, err)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(buf.String()).Write(w)
}

func (s *Server) renderPartial(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) renderFailed(w http.ResponseWriter, r *http.Request, name string, err error) {
	fields := applog.NewFields()
	fields["template"] = name
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogError(r.Context(), "Template execution failed", err, applog.ComponentTemplate, applog.OpRender, fields)
	InternalServerError("Erro ao renderizar a página").Write(w)
}

// page is the data every full-page template receives.
type page struct {
	Title         string
	Authenticated bool
	CSRFField     template.HTML
	CSRFToken     string
	Message       *dashboard.Message

	Summary    *summaryView
	Metrics    []metricOption
	Table      recordTable
	RangeStart string
	RangeEnd   string
}

func (s *Server) newPage(r *http.Request, sess *auth.Session) *page {
	return &page{
		Authenticated: s.gate.RequireAuthenticated(sess) == nil,
		CSRFField:     csrf.TemplateField(r),
		CSRFToken:     csrf.Token(r),
	}
}

type summaryView struct {
	Revenue, Expense, Profit string
	Negative                 bool
	Count                    int
}

func newSummaryView(s core.Summary) *summaryView {
	return &summaryView{
		Revenue:  core.FormatBRL(s.Revenue),
		Expense:  core.FormatBRL(s.Expense),
		Profit:   core.FormatBRL(s.Profit),
		Negative: s.Profit.IsNegative(),
		Count:    s.Count,
	}
}

type metricOption struct {
	Value, Label string
	Selected     bool
}

func metricOptions(selected core.Metric) []metricOption {
	opts := make([]metricOption, 0, len(core.Metrics))
	for _, m := range core.Metrics {
		opts = append(opts, metricOption{Value: string(m), Label: m.Label(), Selected: m == selected})
	}
	return opts
}

type recordRow struct {
	Date, Revenue, Expense, Profit string
	Negative                       bool
}

type recordTable struct {
	Rows []recordRow
	OOB  bool
}

func newRecordTable(records []core.DerivedRecord, oob bool) recordTable {
	t := recordTable{Rows: make([]recordRow, 0, len(records)), OOB: oob}
	for _, rec := range records {
		t.Rows = append(t.Rows, recordRow{
			Date:     rec.Date.String(),
			Revenue:  core.FormatBRL(rec.Revenue),
			Expense:  core.FormatBRL(rec.Expense),
			Profit:   core.FormatBRL(rec.Profit),
			Negative: rec.Profit.IsNegative(),
		})
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/csrf"

	"painel/internal/auth"
	"painel/internal/dashboard"
	applog "painel/internal/log"
	"painel/internal/middleware/ratelimit"
	"painel/internal/middleware/security"
	"painel/internal/middleware/trace"
	appweb "painel/web"
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Broker reports whether the change notification connection is up.
type Broker interface {
	IsOpen() bool
}

// Options wires the server to the rest of the application.
type Options struct {
	Addr       string
	Controller *dashboard.Controller
	Gate       *auth.Gate
	Store      Pinger
	Logger     *applog.Logger

	// Broker is optional; nil means change notifications are disabled.
	Broker Broker

	// CSRFKey is the 32-byte key for CSRF tokens. Nil disables CSRF checks.
	CSRFKey      []byte
	CookieSecure bool
	RateLimit    ratelimit.Config
}

type Server struct {
	http.Server
	templates    *template.Template
	controller   *dashboard.Controller
	gate         *auth.Gate
	store        Pinger
	broker       Broker
	logger       *applog.Logger
	cookieSecure bool

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Controller == nil || opts.Gate == nil {
		return nil, fmt.Errorf("server requires a controller and a gate")
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates:        t,
		controller:       opts.Controller,
		gate:             opts.Gate,
		store:            opts.Store,
		broker:           opts.Broker,
		logger:           logger,
		cookieSecure:     opts.CookieSecure,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: security.NewDetector(),
		started:          time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	pages := http.NewServeMux()
	pages.HandleFunc("GET /", s.handlePage)
	pages.HandleFunc("POST /login", s.handleLogin)
	pages.HandleFunc("POST /logout", s.handleLogout)
	pages.HandleFunc("GET /dashboard/charts", s.handleCharts)
	pages.HandleFunc("GET /dashboard/records", s.handleRecords)
	pages.HandleFunc("POST /dashboard/records", s.handleRecordSubmit)
	pages.HandleFunc("POST /dashboard/records/delete", s.handleRecordDelete)
	pages.HandleFunc("GET /dashboard/export", s.handleExport)

	var app http.Handler = security.NoStore(pages)
	if opts.CSRFKey != nil {
		app = s.withCSRF(opts.CSRFKey, app)
	}
	mux.Handle("/", app)

	// Outermost first: trace, probe detection, headers, rate limit.
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// withCSRF protects state-changing requests with gorilla/csrf. Plain HTTP
// deployments are marked so the origin check does not demand TLS.
func (s *Server) withCSRF(key []byte, next http.Handler) http.Handler {
	protect := csrf.Protect(key,
		csrf.Secure(s.cookieSecure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
	)(next)
	if s.cookieSecure {
		return protect
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protect.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(),
		"CSRF validation failed", applog.FieldPath, r.URL.Path, "reason", csrf.FailureReason(r))
	ErrorResponse(http.StatusForbidden, "Sessão do formulário expirada. Recarregue a página.").Write(w)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded", applog.FieldPath, r.URL.Path, applog.FieldClientIP, s.securityDetector.ExtractClientIP(r))
	ErrorResponse(http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.").
		Header("Retry-After", "60").
		Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

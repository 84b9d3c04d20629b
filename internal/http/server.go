package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"paylog/internal/cache"
	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/middleware/ratelimit"
	"paylog/internal/middleware/security"
	"paylog/internal/middleware/trace"
	"paylog/internal/services"
)

// Categories change only through this API, which invalidates the entry.
// Currencies are toggled by paylogctl from another process, so their
// listing is always read from storage.
const categoriesKey = "categories"

// Config holds the HTTP layer settings.
type Config struct {
	Addr string
	// RateLimitPerMinute bounds requests per client IP on the code-issuing
	// and code-checking endpoints.
	RateLimitPerMinute int
	// TelegramBotSecret, when set, must be sent by the bot in
	// X-Telegram-Bot-Secret.
	TelegramBotSecret string
	TrustedProxies    []string
	BlockSuspicious   bool
	CatalogCacheTTL   time.Duration
	// Ready reports whether dependencies are reachable.
	Ready func(ctx context.Context) error
}

// Services are the use cases the API exposes.
type Services struct {
	Auth    *services.AuthService
	Ledger  *services.LedgerService
	Debtors *services.DebtorService
	Catalog *services.CatalogService
	Chats   *services.ChatService
}

type Server struct {
	http.Server
	cfg    Config
	svc    Services
	logger *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	categories *cache.LRUCache[[]core.Category]
	caches     *cache.Manager

	started      time.Time
	catalogReads int64
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, svc Services, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	trusted := cfg.TrustedProxies
	if trusted == nil {
		trusted = security.DefaultTrustedProxies
	}
	detector, err := security.NewDetector(trusted, cfg.BlockSuspicious)
	if err != nil {
		return nil, fmt.Errorf("configure security detector: %w", err)
	}

	limits := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		limits.Requests = cfg.RateLimitPerMinute
	}

	s := &Server{
		cfg:        cfg,
		svc:        svc,
		logger:     logger.WithComponent(log.ComponentHTTP),
		limiter:    ratelimit.NewLimiter(limits),
		detector:   detector,
		tracer:     trace.NewMiddleware(detector.ExtractClientIP),
		categories: cache.NewLRUCache[[]core.Category](1, cfg.CatalogCacheTTL),
		caches:     cache.NewManager(),
		started:    time.Now(),
	}
	s.caches.Register(categoriesKey, s.categories)
	if cfg.CatalogCacheTTL > 0 {
		s.caches.StartCleanup(cfg.CatalogCacheTTL)
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = s.routes()
	handler = headers.Middleware(handler)
	handler = log.Middleware(s.logger, trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = detector.Middleware(func(w http.ResponseWriter, r *http.Request) {
		DetailResponse(http.StatusBadRequest, "Bad request.").Write(w)
	})(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	// every route answers with and without a trailing slash
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, h)
		mux.Handle(pattern+"/{$}", h)
	}
	otp := s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited)

	handle("GET /healthz", http.HandlerFunc(s.handleHealth))
	handle("GET /readyz", http.HandlerFunc(s.handleReady))
	handle("GET /metrics", http.HandlerFunc(s.handleMetrics))

	handle("POST /api/v1/users/otp/send", otp(http.HandlerFunc(s.handleOTPSend)))
	handle("POST /api/v1/users/otp/resend", otp(http.HandlerFunc(s.handleOTPResend)))
	handle("POST /api/v1/users/otp/verify", otp(http.HandlerFunc(s.handleOTPVerify)))
	handle("POST /api/v1/users/token/refresh", http.HandlerFunc(s.handleTokenRefresh))
	handle("GET /api/v1/users/me", s.authed(s.handleProfile))
	handle("PUT /api/v1/users/me", s.authed(s.handleProfileUpdate))
	handle("PATCH /api/v1/users/me", s.authed(s.handleProfileUpdate))

	handle("POST /api/v1/auth/telegram/otp/send", otp(s.botOnly(http.HandlerFunc(s.handleTelegramSend))))
	handle("POST /api/v1/auth/telegram/otp/verify", otp(http.HandlerFunc(s.handleTelegramVerify)))

	handle("GET /api/v1/finance/categories", s.authed(s.handleCategoryList))
	handle("POST /api/v1/finance/categories", s.authed(s.handleCategoryCreate))
	handle("GET /api/v1/finance/categories/{id}", s.authed(s.handleCategoryGet))
	handle("PUT /api/v1/finance/categories/{id}", s.authed(s.handleCategoryUpdate))
	handle("PATCH /api/v1/finance/categories/{id}", s.authed(s.handleCategoryUpdate))
	handle("DELETE /api/v1/finance/categories/{id}", s.authed(s.handleCategoryDelete))

	handle("GET /api/v1/finance/currencies", s.authed(s.handleCurrencyList))
	handle("GET /api/v1/finance/currencies/{id}", s.authed(s.handleCurrencyGet))

	handle("GET /api/v1/finance/transactions", s.authed(s.handleTransactionList))
	handle("POST /api/v1/finance/transactions", s.authed(s.handleTransactionCreate))
	handle("GET /api/v1/finance/transactions/{id}", s.authed(s.handleTransactionGet))
	handle("PUT /api/v1/finance/transactions/{id}", s.authed(s.handleTransactionUpdate))
	handle("PATCH /api/v1/finance/transactions/{id}", s.authed(s.handleTransactionUpdate))
	handle("DELETE /api/v1/finance/transactions/{id}", s.authed(s.handleTransactionDelete))

	handle("GET /api/v1/finance/debtor-transactions", s.authed(s.handleDebtorList))
	handle("POST /api/v1/finance/debtor-transactions", s.authed(s.handleDebtorCreate))
	handle("GET /api/v1/finance/debtor-transactions/balance", s.authed(s.handleDebtorBalance))
	handle("GET /api/v1/finance/debtor-transactions/{id}", s.authed(s.handleDebtorGet))
	handle("PUT /api/v1/finance/debtor-transactions/{id}", s.authed(s.handleDebtorUpdate))
	handle("PATCH /api/v1/finance/debtor-transactions/{id}", s.authed(s.handleDebtorUpdate))
	handle("DELETE /api/v1/finance/debtor-transactions/{id}", s.authed(s.handleDebtorDelete))

	handle("GET /api/v1/chats", s.authed(s.handleChatList))
	handle("GET /api/v1/chats/{id}", s.authed(s.handleChatGet))
	handle("POST /api/v1/debtors", s.authed(s.handleDebtorChatCreate))

	return mux
}

// rateLimited answers throttled clients in the envelope shape of the
// account endpoints.
func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path,
		"retry_after_ms", retryAfter.Milliseconds())
	ErrorResponse(styleEnvelope, core.TooManyAttempts("Too many requests. Please try again later.")).Write(w)
}

// fail logs err and renders it in style.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, style errorStyle, err error) {
	var userID int64
	if u, ok := currentUser(r.Context()); ok {
		userID = u.ID
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogRequestError(r.Context(), r, statusFor(err), err, userID)
	ErrorResponse(style, err).Write(w)
}

func (s *Server) listCategories(ctx context.Context) ([]core.Category, error) {
	atomic.AddInt64(&s.catalogReads, 1)
	if cs, ok := s.categories.Get(categoriesKey); ok {
		return cs, nil
	}
	cs, err := s.svc.Catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.categories.Set(categoriesKey, cs)
	return cs, nil
}

func (s *Server) invalidateCategories() {
	s.categories.Delete(categoriesKey)
}

func (s *Server) listActiveCurrencies(ctx context.Context) ([]core.Currency, error) {
	atomic.AddInt64(&s.catalogReads, 1)
	return s.svc.Catalog.ListCurrencies(ctx, false)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Truncate(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}
	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			checks["database"] = "failed"
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}
	checks["cache"] = map[string]any{
		"categories": s.categories.Size(),
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateMetrics := s.limiter.GetMetrics()
	catHits, catMisses := s.categories.Stats()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "Requests answered with a 5xx status", traceMetrics.ServerErrors)
	metric("security_suspicious_requests_total", "Requests matching a probe pattern", securityMetrics.SuspiciousRequests)
	metric("security_blocked_requests_total", "Suspicious requests rejected", securityMetrics.BlockedRequests)
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", rateMetrics.TotalHits)
	metric("rate_limit_active_clients", "Clients tracked by the rate limiter", rateMetrics.ClientCount)
	metric("catalog_reads_total", "Category and currency listings served", atomic.LoadInt64(&s.catalogReads))
	metric("catalog_cache_hits_total", "Category listings served from cache", catHits)
	metric("catalog_cache_misses_total", "Category listings loaded from storage", catMisses)
	metric("uptime_seconds", "Seconds since the server started", int64(time.Since(s.started).Seconds()))
}

package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"taxbridge/internal/cache"
	"taxbridge/internal/core"
	"taxbridge/internal/country"
	"taxbridge/internal/log"
	"taxbridge/internal/logo"
	"taxbridge/internal/middleware/ratelimit"
	"taxbridge/internal/middleware/security"
	"taxbridge/internal/middleware/trace"
	"taxbridge/internal/report"
	"taxbridge/internal/services"
	"taxbridge/internal/valuation"
)

// LedgerBuilder runs the valuation pipeline for one wallet.
type LedgerBuilder interface {
	Build(ctx context.Context, q services.LedgerQuery) (services.Ledger, error)
	Report(ctx context.Context, q services.LedgerQuery, format report.Format) (report.Artifact, services.Ledger, error)
}

// ProfileManager stores company profiles keyed by wallet.
type ProfileManager interface {
	Create(ctx context.Context, p core.CompanyProfile) (core.CompanyProfile, error)
	List(ctx context.Context, wallet string) ([]core.CompanyProfile, error)
	Update(ctx context.Context, wallet string, patch core.ProfilePatch) (core.CompanyProfile, error)
	Ping(ctx context.Context) error
}

type CountryLister interface {
	List(ctx context.Context) ([]country.Country, error)
}

// Deps are the services behind the API. Logos and Caches are optional.
type Deps struct {
	Ledger       LedgerBuilder
	Profiles     ProfileManager
	Transactions services.TransactionSource
	Prices       valuation.PriceLookup
	Fiat         string
	Countries    CountryLister
	Logos        logo.Store
	Caches       *cache.Manager
	Logger       *log.Logger
}

type Options struct {
	RateLimitPerMinute int
	MaxUploadBytes     int64
	TrustedProxies     []string
}

// Server wraps http.Server with the API routes and middleware.
type Server struct {
	http.Server

	deps Deps
	opts Options

	detector   *security.Detector
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	logger     *log.Logger
	events     *log.StructuredLogger
	appMetrics *appMetrics
	now        func() time.Time

	shutdownOnce sync.Once
}

// appMetrics tracks application-level counters exposed on /metrics.
type appMetrics struct {
	uptime        time.Time
	ledgers       int64
	reports       int64
	partial       int64
	profileWrites int64
	uploads       int64
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Fiat == "" {
		deps.Fiat = "usd"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = logo.MaxLogoBytes
	}
	logger := deps.Logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err.Error())
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
		deps:       deps,
		opts:       opts,
		detector:   detector,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		logger:     logger,
		events:     log.NewStructuredLogger(deps.Logger),
		appMetrics: &appMetrics{uptime: time.Now()},
		now:        time.Now,
	}
	s.tracer = trace.NewMiddleware(detector.ExtractClientIP, deps.Logger)

	mux := http.NewServeMux()
	limited := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldComponent, log.ComponentRateLimit,
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})
	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, limited(h))
	}

	api("GET /api/transactions", s.handleTransactions)
	api("GET /api/price", s.handlePrice)
	api("GET /api/ledger", s.handleLedger)
	api("GET /api/report", s.handleReport)
	api("POST /api/company", s.handleCreateCompany)
	api("GET /api/company", s.handleListCompanies)
	api("PATCH /api/company", s.handleUpdateCompany)
	api("POST /api/upload-logo", s.handleUploadLogo)
	api("GET /api/countries", s.handleCountries)

	mux.Handle("GET /logos/{object}", security.StaticAssetMiddleware(86400)(http.HandlerFunc(s.handleLogo)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var handler http.Handler = mux
	handler = s.guard(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = log.Middleware(deps.Logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	s.Handler = handler

	return s
}

// guard rejects requests that match known scan patterns.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request rejected",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
			BadRequestError("request rejected").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fail writes err as a JSON error. Server-side failures are logged with the
// underlying cause, which never reaches the caller.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorResponse(err)
	ctx := r.Context()
	if resp.StatusCode() >= http.StatusInternalServerError {
		s.events.LogError(ctx, "Request failed", err, log.ComponentHTTP, op, log.LogFields{
			log.FieldPath:      r.URL.Path,
			log.FieldRequestID: trace.GetRequestID(ctx),
		})
	} else {
		log.FromContext(ctx).DebugContext(ctx, "Request rejected",
			log.FieldOperation, op,
			log.FieldStatusCode, resp.StatusCode(),
			log.FieldError, err.Error())
	}
	resp.Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.deps.Caches != nil {
			s.deps.Caches.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

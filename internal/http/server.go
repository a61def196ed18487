package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/middleware/ratelimit"
	"github.com/Ayushsunny/Budgease/internal/middleware/security"
	"github.com/Ayushsunny/Budgease/internal/middleware/trace"
	"github.com/Ayushsunny/Budgease/internal/session"
)

// DefaultHeartbeat is how often an idle event stream sends a comment line.
const DefaultHeartbeat = 25 * time.Second

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(token string) (core.Identity, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server is the JSON API and live event stream over per-identity Budget
// Stores.
type Server struct {
	*http.Server

	sessions *session.Manager
	verifier TokenVerifier
	notices  *NoticeHub
	logger   *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	heartbeat   time.Duration
	rateLimit   ratelimit.Config
	checks      map[string]ReadinessCheck
	baseCtx     context.Context
	cancelBase  context.CancelFunc
	startedAt   time.Time
	metrics     appMetrics
	shutdownErr error
	stopOnce    sync.Once
}

type Option func(*Server)

// WithHeartbeat sets the idle keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithRateLimit configures the per-client limit on mutating requests.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) { s.rateLimit = cfg }
}

// WithReadinessCheck adds a named dependency check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer wires routes and middleware. notices must be the hub the
// manager's stores publish to.
func NewServer(addr string, sessions *session.Manager, verifier TokenVerifier, notices *NoticeHub, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	if notices == nil {
		notices = NewNoticeHub()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		sessions:   sessions,
		verifier:   verifier,
		notices:    notices,
		logger:     logger.WithComponent(log.ComponentHTTP),
		detector:   security.NewDetector(),
		heartbeat:  DefaultHeartbeat,
		rateLimit:  ratelimit.DefaultConfig(),
		checks:     make(map[string]ReadinessCheck),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = ratelimit.NewLimiter(s.rateLimit)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/budget", s.withStore(s.handleGetBudget))
	mux.HandleFunc("PUT /api/budget/salary", s.withStore(s.handleSetSalary))
	mux.HandleFunc("POST /api/categories", s.withStore(s.handleAddCategory))
	mux.HandleFunc("PATCH /api/categories/{id}", s.withStore(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.withStore(s.handleRemoveCategory))
	mux.HandleFunc("PUT /api/categories/{id}/allocation", s.withStore(s.handleEditAllocation))
	mux.HandleFunc("POST /api/categories/{id}/expenses", s.withStore(s.handleAddExpense))
	mux.HandleFunc("GET /api/events", s.withStore(s.handleEvents))

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.SafeMethods, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r))
		TooManyRequestsError().Write(w)
	})(handler)
	handler = s.withSuspiciousLogging(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = log.Middleware(s.logger)(handler)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Event streams clear their own write deadline.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

func (s *Server) withSuspiciousLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"),
				log.FieldClientIP, s.detector.ExtractClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown ends open event streams, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.cancelBase()
		s.shutdownErr = s.Server.Shutdown(ctx)
		s.limiter.Stop()
	})
	return s.shutdownErr
}

// Close ends event streams and closes listeners without draining.
func (s *Server) Close() error {
	s.cancelBase()
	s.limiter.Stop()
	return s.Server.Close()
}

package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Ayushsunny/Budgease/internal/auth"
	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/session"
	"github.com/Ayushsunny/Budgease/internal/store"
)

type appMetrics struct {
	mutations     int64
	rejected      int64
	openStreams   int64
	streamsServed int64
}

func (m *appMetrics) streamOpened() {
	atomic.AddInt64(&m.openStreams, 1)
	atomic.AddInt64(&m.streamsServed, 1)
}

func (m *appMetrics) streamClosed() {
	atomic.AddInt64(&m.openStreams, -1)
}

type storeHandler func(w http.ResponseWriter, r *http.Request, st *store.Store, id core.Identity)

// identify resolves the caller. No token means the anonymous identity.
func (s *Server) identify(r *http.Request) (core.Identity, error) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		return core.Identity{}, nil
	}
	if s.verifier == nil {
		return core.Identity{}, auth.ErrInvalidToken
	}
	return s.verifier.Verify(token)
}

// withStore authenticates the request and hands the handler the caller's
// Ready store for the duration of the request.
func (s *Server) withStore(next storeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := s.identify(r)
		if err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Rejected token", log.FieldError, err)
			UnauthorizedError("invalid or expired token").Write(w)
			return
		}

		logger := log.FromContext(ctx).With(log.FieldIdentity, id.Key())
		r = r.WithContext(log.IntoContext(ctx, logger))

		st, release, err := s.sessions.Acquire(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrManagerClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				ServiceUnavailableError("budget is not available").Write(w)
			default:
				logger.ErrorContext(r.Context(), "Failed to open budget", log.FieldError, err)
				InternalServerError("failed to open budget").Write(w)
			}
			return
		}
		defer release()
		next(w, r, st, id)
	}
}

// writeStoreError maps store errors onto status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *store.ValidationError
	switch {
	case errors.Is(err, core.ErrCategoryNotFound):
		atomic.AddInt64(&s.metrics.rejected, 1)
		NotFoundError(err.Error()).Write(w)
	case errors.As(err, &verr):
		atomic.AddInt64(&s.metrics.rejected, 1)
		log.FromContext(r.Context()).InfoContext(r.Context(), "Change rejected",
			log.FieldOperation, op, log.FieldError, verr.Err)
		UnprocessableEntityError(verr.Err.Error()).Write(w)
	case errors.Is(err, store.ErrNotReady), errors.Is(err, store.ErrClosed):
		ServiceUnavailableError(err.Error()).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Unexpected store error",
			log.FieldOperation, op, log.FieldError, err)
		InternalServerError("unexpected error").Write(w)
	}
}

// mutated counts and logs a successful change; attrs carry the category id
// or amount the change was about.
func (s *Server) mutated(r *http.Request, op string, st *store.Store, attrs ...any) {
	atomic.AddInt64(&s.metrics.mutations, 1)
	args := append([]any{log.FieldOperation, op, log.FieldRevision, st.Revision()}, attrs...)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Budget updated", args...)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request, st *store.Store, _ core.Identity) {
	NewJSONResponse().Body(viewOf(st, st.Snapshot())).Write(w)
}

func (s *Server) handleSetSalary(w http.ResponseWriter, r *http.Request, st *store.Store, _ core.Identity) {
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.Float()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if err := st.SetSalary(amount); err != nil {
		s.writeStoreError(w, r, log.OpSetSalary, err)
		return
	}
	s.mutated(r, log.OpSetSalary, st, log.FieldAmount, amount)
	NewJSONResponse().Body(viewOf(st, st.Snapshot())).Write(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request, st *store.Store, _ core.Identity) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	c, err := st.AddCategory(sanitizeInput(req.Name))
	if err != nil {
		s.writeStoreError(w, r, log.OpAddCategory, err)
		return
	}
	s.mutated(r, log.OpAddCategory, st, log.FieldCategoryID, c.ID)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/categories/"+c.ID).
		Body(c).
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, st *store.Store, _ core.Identity) {
	var req patchCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Name == nil && req.Allocation == nil {
		BadRequestError("nothing to update: provide name or allocation").Write(w)
		return
	}

	var patch core.CategoryPatch
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		patch.Name = &name
	}
	if req.Allocation != nil {
		amount, err := req.Allocation.Float()
		if err != nil {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		patch.Allocation = &amount
	}

	if err := st.UpdateCategory(r.PathValue("id"), patch); err != nil {
		s.writeStoreError(w, r, log.OpUpdateCategory, err)
		return
	}
	s.mutated(r, log.OpUpdateCategory, st, log.FieldCategoryID, r.PathValue("id"))
	NewJSONResponse().Body(viewOf(st, st.Snapshot())).Write(w)
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request, st *store.Store, _ core.Identity) {
	if err := st.RemoveCategory(r.PathValue("id")); err != nil {
		s.writeStoreError(w, r, log.OpRemoveCategory, err)
		return
	}
	s.mutated(r, log.OpRemoveCategory, st, log.FieldCategoryID, r.PathValue("id"))
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleEditAllocation(w http.ResponseWriter, r *http.Request, st *store.Store, _ core.Identity) {
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.Float()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if err := st.EditAllocation(r.PathValue("id"), amount); err != nil {
		s.writeStoreError(w, r, log.OpEditAllocation, err)
		return
	}
	s.mutated(r, log.OpEditAllocation, st, log.FieldCategoryID, r.PathValue("id"), log.FieldAmount, amount)
	NewJSONResponse().Body(viewOf(st, st.Snapshot())).Write(w)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request, st *store.Store, _ core.Identity) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.Float()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	e, err := st.AddExpense(r.PathValue("id"), core.ExpenseInput{
		Amount: amount,
		Date:   strings.TrimSpace(req.Date),
		Note:   sanitizeInput(req.Note),
	})
	if err != nil {
		s.writeStoreError(w, r, log.OpAddExpense, err)
		return
	}
	s.mutated(r, log.OpAddExpense, st, log.FieldCategoryID, r.PathValue("id"), log.FieldAmount, amount)
	NewJSONResponse().Status(http.StatusCreated).Body(e).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.baseCtx.Err() != nil {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		checks["server"] = "shutting down"
	} else {
		checks["server"] = "ok"
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}

	checks["sessions"] = map[string]any{"open": s.sessions.Len()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("budget_mutations_total", "Accepted budget changes", "counter", atomic.LoadInt64(&s.metrics.mutations))
	metric("budget_rejections_total", "Rejected budget changes", "counter", atomic.LoadInt64(&s.metrics.rejected))
	metric("budget_sessions_open", "Open budget stores", "gauge", s.sessions.Len())
	metric("event_streams_open", "Open event streams", "gauge", atomic.LoadInt64(&s.metrics.openStreams))
	metric("event_streams_total", "Event streams served", "counter", atomic.LoadInt64(&s.metrics.streamsServed))
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", limitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", int64(time.Since(s.startedAt).Seconds()))
}


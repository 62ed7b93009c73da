package chi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scout/internal/domain"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/logger"
	candidateuc "github.com/kailas-cloud/scout/internal/usecase/candidate"
	discoveryuc "github.com/kailas-cloud/scout/internal/usecase/discovery"
	healthuc "github.com/kailas-cloud/scout/internal/usecase/health"
	"github.com/kailas-cloud/scout/internal/version"
)

const (
	maxBodyBytes = 1 << 20

	// statusClientClosedRequest is reported when the caller went away mid-request.
	statusClientClosedRequest = 499
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the discovery HTTP API.
type Server struct {
	discovery     *discoveryuc.Service
	candidates    *candidateuc.Service
	health        *healthuc.Service
	validate      *validator.Validate
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	discovery *discoveryuc.Service,
	candidates *candidateuc.Service,
	health *healthuc.Service,
) *Server {
	s := &Server{
		discovery:  discovery,
		candidates: candidates,
		health:     health,
		validate:   newValidator(),
	}
	s.errorHandlers = []errorHandler{
		deadlineHandler,
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrUnknownKind, http.StatusNotFound, ErrorCodeUnknownKind),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, ErrorCodeForbidden),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited),
		sentinelHandler(domain.ErrBackingStoreUnavailable, http.StatusServiceUnavailable, ErrorCodeStoreUnavailable),
		sentinelHandler(domain.ErrCanceled, statusClientClosedRequest, ErrorCodeCanceled),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1/kinds/{kind}", func(r chi.Router) {
		r.Post("/discover", s.Discover)
		r.Get("/discover", s.DiscoverQuery)
		r.Put("/candidates/{id}", s.UpsertCandidate)
		r.Post("/candidates/{id}/heartbeat", s.Heartbeat)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
}

// Discover handles POST /v1/kinds/{kind}/discover.
func (s *Server) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.discover(w, r, &req)
}

// DiscoverQuery handles GET /v1/kinds/{kind}/discover.
// It accepts the scalar subset of DiscoverRequest plus repeated
// tag=attr:value, flag=name or flag=!name, and include=flag parameters.
func (s *Server) DiscoverQuery(w http.ResponseWriter, r *http.Request) {
	req, err := discoverRequestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}
	s.discover(w, r, req)
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request, req *DiscoverRequest) {
	ctx := r.Context()
	kindName := chi.URLParam(r, "kind")

	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, validationMessage(err))
		return
	}

	limits, err := s.discovery.Limits(kindName)
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}
	spec, err := req.builder().Build(limits)
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	pg, err := s.discovery.Discover(ctx, requester(ctx), kindName, spec)
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageToResponse(&pg))
}

// UpsertCandidate handles PUT /v1/kinds/{kind}/candidates/{id}.
func (s *Server) UpsertCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpsertCandidateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, validationMessage(err))
		return
	}

	c, err := s.candidates.Upsert(ctx, requester(ctx), req.fields(chi.URLParam(r, "kind"), chi.URLParam(r, "id")))
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidateToResponse(&c))
}

// Heartbeat handles POST /v1/kinds/{kind}/candidates/{id}/heartbeat.
func (s *Server) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	at, err := s.candidates.Heartbeat(ctx, requester(ctx), chi.URLParam(r, "kind"), id)
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, HeartbeatResponse{ID: id, LastActivityAt: at})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// requester returns the authenticated requester or the anonymous one.
func requester(ctx context.Context) query.Requester {
	req, _ := RequesterFromContext(ctx)
	return req
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func discoverRequestFromQuery(r *http.Request) (*DiscoverRequest, error) {
	q := r.URL.Query()
	var (
		req             DiscoverRequest
		lat, lon        *float64
		activeWithinSec *int
		pageSize        *int
		sort, cursor    *string
		tags, flags     []string
		include         []string
		group           *bool
	)
	binds := []struct {
		name string
		dest any
	}{
		{"lat", &lat},
		{"lon", &lon},
		{"radiusKm", &req.RadiusKm},
		{"ageMin", &req.AgeMin},
		{"ageMax", &req.AgeMax},
		{"activeWithinSec", &activeWithinSec},
		{"sort", &sort},
		{"pageSize", &pageSize},
		{"cursor", &cursor},
		{"group", &group},
		{"tag", &tags},
		{"flag", &flags},
		{"include", &include},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return nil, fmt.Errorf("invalid format for parameter %s", b.name)
		}
	}

	if lat != nil || lon != nil {
		if lat == nil || lon == nil {
			return nil, fmt.Errorf("lat and lon must be given together")
		}
		req.Center = &Center{Lat: *lat, Lon: *lon}
	}
	if activeWithinSec != nil {
		req.ActiveWithinSec = *activeWithinSec
	}
	if sort != nil {
		req.Sort = *sort
	}
	if pageSize != nil {
		req.PageSize = *pageSize
	}
	if cursor != nil {
		req.Cursor = *cursor
	}
	if group != nil {
		req.Group = *group
	}
	for _, t := range tags {
		attr, value, ok := strings.Cut(t, ":")
		if !ok || attr == "" || value == "" {
			return nil, fmt.Errorf("tag must be attr:value, got %q", t)
		}
		if req.Categorical == nil {
			req.Categorical = map[string][]string{}
		}
		req.Categorical[attr] = append(req.Categorical[attr], value)
	}
	for _, f := range flags {
		if req.Flags == nil {
			req.Flags = map[string]bool{}
		}
		if name, negated := strings.CutPrefix(f, "!"); negated {
			req.Flags[name] = false
		} else {
			req.Flags[f] = true
		}
	}
	for _, f := range include {
		if req.Include == nil {
			req.Include = map[string]bool{}
		}
		req.Include[f] = true
	}
	return &req, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into one client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "validation failed"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Invalid input keeps its field and reason, which never carry backend text.
func safeDomainMessage(err error) string {
	var iie *domain.InvalidInputError
	if errors.As(err, &iie) {
		return iie.Error()
	}
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrUnknownKind,
		domain.ErrNotFound,
		domain.ErrForbidden,
		domain.ErrRateLimited,
		domain.ErrBackingStoreUnavailable,
		domain.ErrCanceled,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// deadlineHandler reports a request that ran out of its server-side budget
// as a retryable store failure rather than a client cancel.
func deadlineHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	writeError(w, http.StatusServiceUnavailable, ErrorCodeStoreUnavailable, domain.ErrBackingStoreUnavailable.Error())
	return true
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContext(ctx)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

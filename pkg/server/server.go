// Package server exposes the leaderboard and profile operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"maps"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/arcade"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/catalog"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/fetch"
)

// Upload limits.
const (
	maxUploadBytes  = 10 << 20
	maxProfileBytes = 64 << 10
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-Id"

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// Service is the subset of *arcade.Service used by the handlers.
type Service interface {
	Leaderboard(ctx context.Context, tables ...[]byte) (*arcade.Response, error)
	Profile(ctx context.Context, rawURL string, f catalog.Filter) (*arcade.Report, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	svc      Service
	gatherer prometheus.Gatherer
	router   *chi.Mux
	logger   *slog.Logger
}

// New creates a Server with all routes configured. A nil gatherer disables /metrics.
func New(svc Service, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      svc,
		gatherer: gatherer,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(requestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/process-leaderboard", s.handleLeaderboard)
		r.Get("/personal-profile", s.handleProfileQuery)
		r.Post("/personal-profile", s.handleProfileBody)
	})
}

// requestID assigns a UUID to each request unless the client supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

// getRequestID returns the request identifier, or "" outside a request.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "requestId", getRequestID(r.Context()))
	})
}

func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	tables, err := readTables(w, r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(tables) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "No CSV data provided")
		return
	}

	resp, err := s.svc.Leaderboard(r.Context(), tables...)
	if err != nil {
		s.handleServiceError(w, r, err, "Failed to process leaderboard")
		return
	}
	w.Header().Set("X-Cache", resp.CacheStatus)
	writeJSON(w, http.StatusOK, resp)
}

// readTables accepts either a multipart upload (every file part is a table)
// or a raw CSV body.
func readTables(w http.ResponseWriter, r *http.Request) ([][]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.New("failed to read request body")
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, nil
		}
		return [][]byte{body}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, errors.New("invalid multipart upload")
	}
	var tables [][]byte
	// Field order is not preserved by the form map; sort for a stable roster.
	for _, field := range slices.Sorted(maps.Keys(r.MultipartForm.File)) {
		for _, fh := range r.MultipartForm.File[field] {
			f, err := fh.Open()
			if err != nil {
				return nil, errors.New("failed to open uploaded file")
			}
			data, err := io.ReadAll(f)
			f.Close() //nolint:errcheck,gosec // read-only
			if err != nil {
				return nil, errors.New("failed to read uploaded file")
			}
			tables = append(tables, data)
		}
	}
	return tables, nil
}

func (s *Server) handleProfileQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.serveProfile(w, r, q.Get("profile"), catalog.Filter{Level: q.Get("level"), Sort: q.Get("sort")})
}

type profileRequest struct {
	URL   string `json:"url"`
	Level string `json:"level"`
	Sort  string `json:"sort"`
}

func (s *Server) handleProfileBody(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProfileBytes)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	s.serveProfile(w, r, req.URL, catalog.Filter{Level: req.Level, Sort: req.Sort})
}

func (s *Server) serveProfile(w http.ResponseWriter, r *http.Request, rawURL string, f catalog.Filter) {
	if rawURL == "" {
		s.writeError(w, r, http.StatusBadRequest, "Profile URL is required")
		return
	}
	rep, err := s.svc.Profile(r.Context(), rawURL, f)
	if err != nil {
		s.handleServiceError(w, r, err, "Failed to analyze profile. Please check the URL and try again.")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleServiceError maps service errors to HTTP responses.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, arcade.ErrInvalidURL):
		s.writeError(w, r, http.StatusBadRequest, "Please provide a valid Google Cloud Skills Boost public profile URL")
	case arcade.IsInvalidInput(err):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case fetch.IsHTTPStatus(err, http.StatusForbidden):
		s.writeError(w, r, http.StatusForbidden, "Profile is private or inaccessible. Please make sure the profile is public.")
	case errors.Is(err, arcade.ErrProfileNotFound):
		s.writeError(w, r, http.StatusNotFound, "Profile not found")
	case errors.Is(err, arcade.ErrRateLimited):
		s.writeError(w, r, http.StatusTooManyRequests, "Upstream is rate limiting requests, try again later")
	case errors.Is(err, arcade.ErrBatchFailed):
		s.writeError(w, r, http.StatusBadGateway, "No profile could be fetched, try again later")
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err, "requestId", getRequestID(r.Context()))
		s.writeError(w, r, http.StatusInternalServerError, fallback)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (*Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: getRequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

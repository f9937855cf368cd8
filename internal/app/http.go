package app

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"jobtrack/api/internal/auth"
	"jobtrack/api/internal/jobs"
	"jobtrack/api/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

type APIConfig struct {
	APIKey     string
	CORSOrigin string
	Logger     *zap.Logger
	Metrics    *Metrics
	Tracer     trace.Tracer
	// Limiter throttles ingestion per API key. Nil disables it.
	Limiter ratelimit.Limiter
}

// HTTPServer is the API-key protected REST surface.
type HTTPServer struct {
	service   *Service
	cfg       APIConfig
	logger    *zap.Logger
	keyHash   []byte
	protected http.Handler
}

func NewHTTPServer(service *Service, cfg APIConfig) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	s := &HTTPServer{
		service: service,
		cfg:     cfg,
		logger:  logger.Named("api"),
		keyHash: []byte(auth.HashToken(cfg.APIKey)),
	}
	s.protected = withRateLimit(cfg.Limiter, cfg.Metrics, s.logger,
		func(r *http.Request) bool {
			return r.Method == http.MethodPost && r.URL.Path == "/activities/ingest"
		},
		func(r *http.Request) string {
			return "key:" + auth.HashToken(r.Header.Get("x-api-key"))[:16]
		},
		http.HandlerFunc(s.route),
	)
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	handler := withTracing(s.cfg.Tracer, http.HandlerFunc(s.handle))
	handler = s.cfg.Metrics.withHTTPMetrics("api", handler)
	return withMiddleware(s.logger, s.cfg.CORSOrigin, "Content-Type, X-API-Key, X-Request-ID", handler)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
		return
	}
	s.protected.ServeHTTP(w, r)
}

// authorized compares digests so the check time does not depend on how
// much of the key matched.
func (s *HTTPServer) authorized(r *http.Request) bool {
	presented := r.Header.Get("x-api-key")
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(auth.HashToken(presented)), s.keyHash) == 1
}

func (s *HTTPServer) route(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)

	switch {
	case len(parts) == 1 && parts[0] == "jobs":
		switch r.Method {
		case http.MethodGet:
			list, err := s.service.ListJobs(r.Context(), r.URL.Query().Get("status"))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
			return
		case http.MethodPost:
			var input jobs.CreateInput
			if err := decodeBody(w, r, &input); err != nil {
				s.writeError(w, r, err)
				return
			}
			job, err := s.service.CreateJob(r.Context(), input)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
			return
		}

	case len(parts) == 2 && parts[0] == "activities" && parts[1] == "ingest" && r.Method == http.MethodPost:
		s.handleIngest(w, r)
		return

	case len(parts) == 2 && parts[0] == "jobs":
		id, ok := parseID(parts[1])
		if !ok {
			s.writeError(w, r, NotFoundError())
			return
		}
		switch r.Method {
		case http.MethodGet:
			detail, err := s.service.JobDetail(r.Context(), id)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, detail)
			return
		case http.MethodPatch:
			var input jobs.PatchInput
			if err := decodeBody(w, r, &input); err != nil {
				s.writeError(w, r, err)
				return
			}
			job, err := s.service.PatchJob(r.Context(), id, input)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
			return
		}
	}

	s.writeError(w, r, NotFoundError())
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateIngestBody(raw); err != nil {
		s.writeError(w, r, err)
		return
	}
	var input jobs.IngestInput
	if err := json.Unmarshal(raw, &input); err != nil {
		s.writeError(w, r, ValidationError("invalid JSON body"))
		return
	}
	resp, err := s.service.Ingest(r.Context(), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeMappedError(s.logger, w, r, err)
}

// writeMappedError logs server faults with the request id and writes the
// client-visible error body.
func writeMappedError(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	mapped := mapError(err)
	if mapped.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	body := map[string]any{"error": mapped.Message, "code": mapped.Code}
	if mapped.Details != nil {
		body["details"] = mapped.Details
	}
	writeJSON(w, mapped.Status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var errBodyTooLarge = domainError(http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, ValidationError("request body required")
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ValidationError("request body required")
	}
	return raw, nil
}

// decodeBody reads one JSON value of at most maxBodyBytes into target.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	raw, err := readBody(w, r)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	if err := decoder.Decode(target); err != nil {
		var validationErr *jobs.ValidationError
		if errors.As(err, &validationErr) {
			return validationErr
		}
		return ValidationError("invalid JSON body")
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return ValidationError("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Package server exposes the digest pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fluxline/crm-digest/pkg/client"
	"github.com/fluxline/crm-digest/pkg/digest"
	"github.com/fluxline/crm-digest/pkg/filter"
	"github.com/fluxline/crm-digest/pkg/logging"
)

const maxRequestBody = 1 << 20

// DigestBuilder produces a digest for one request.
type DigestBuilder interface {
	Build(ctx context.Context, req digest.Request) (*digest.Digest, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Addr string

	// RequestTimeout bounds one digest build end to end.
	RequestTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		RequestTimeout: 60 * time.Second,
	}
}

// Server serves digest builds, health, and metrics.
type Server struct {
	builder DigestBuilder
	filters filter.FilterSource
	schema  *jsonschema.Schema
	config  Config
	logger  zerolog.Logger
	httpSrv *http.Server
}

// New creates a server over the given pipeline and filter source.
func New(cfg Config, builder DigestBuilder, filters filter.FilterSource) (*Server, error) {
	if builder == nil {
		return nil, fmt.Errorf("digest builder is required")
	}
	if filters == nil {
		return nil, fmt.Errorf("filter source is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	schema, err := compileRequestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}

	s := &Server{
		builder: builder,
		filters: filters,
		schema:  schema,
		config:  cfg,
		logger:  logging.NewLogger("server"),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /digest", s.handleDigest)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.Addr).Msg("Starting digest server")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// filterRef is a saved filter reference: a name string or a bare
// numeric id in the request body.
type filterRef string

func (f *filterRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = filterRef(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = filterRef(strconv.FormatInt(n, 10))
	return nil
}

type digestRequest struct {
	OverdueFilter     filterRef `json:"overdue_filter"`
	DueTodayFilter    filterRef `json:"due_today_filter"`
	MissingNextFilter filterRef `json:"missing_next_action_filter"`

	OverdueLimit     int `json:"overdue_limit"`
	DueTodayLimit    int `json:"due_today_limit"`
	MissingNextLimit int `json:"missing_next_action_limit"`

	Timezone       string `json:"timezone"`
	IncludeRelated *bool  `json:"include_related"`
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
		return
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := s.schema.Validate(instance); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}

	var req digestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	overdueID, err := filter.ResolveFilterID(ctx, s.filters, string(req.OverdueFilter))
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("overdue filter: %w", err))
		return
	}
	dueTodayID, err := filter.ResolveFilterID(ctx, s.filters, string(req.DueTodayFilter))
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("due-today filter: %w", err))
		return
	}
	missingNextID, err := filter.ResolveFilterID(ctx, s.filters, string(req.MissingNextFilter))
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("missing-next-action filter: %w", err))
		return
	}

	includeRelated := true
	if req.IncludeRelated != nil {
		includeRelated = *req.IncludeRelated
	}

	result, err := s.builder.Build(ctx, digest.Request{
		OverdueFilterID:     overdueID,
		DueTodayFilterID:    dueTodayID,
		MissingNextFilterID: missingNextID,
		OverdueLimit:        req.OverdueLimit,
		DueTodayLimit:       req.DueTodayLimit,
		MissingNextLimit:    req.MissingNextLimit,
		Timezone:            req.Timezone,
		IncludeRelated:      includeRelated,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Digest build failed")
		s.writeError(w, upstreamStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// upstreamStatus maps a build failure to a response status. Client-side
// mistakes (an invalid timezone, a missing filter) surface as 422,
// upstream trouble as 502.
func upstreamStatus(err error) int {
	if client.IsNotFound(err) {
		return http.StatusUnprocessableEntity
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) || errors.Is(err, client.ErrRetryExhausted) {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// Package httpapi exposes the turn handler over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"conductor/internal/logging"
	"conductor/internal/types"

	"github.com/google/uuid"
)

const (
	maxTurnBodyBytes int64 = 4 << 20
	requestIDHeader        = "X-Request-Id"
)

// TurnHandler is the orchestrator surface served by the API.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req types.TurnRequest, requestID string) types.TurnResponse
}

type server struct {
	turns TurnHandler
}

// Options configures NewServer.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer returns an http.Server that routes to turns.
func NewServer(turns TurnHandler, opts Options) *http.Server {
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           NewHandler(turns),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
	}
}

// NewHandler returns the API routes without a server around them.
func NewHandler(turns TurnHandler) http.Handler {
	s := &server{turns: turns}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/turn", s.handleTurn)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleTurn(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer r.Body.Close()
	var req types.TurnRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxTurnBodyBytes))
	if err := dec.Decode(&req); err != nil {
		logging.Get(logging.CategoryAPI).Warn("rejecting turn request_id=%s: %v", requestID, err)
		writeJSON(w, http.StatusBadRequest, types.ErrorEnvelope{
			Error: types.ErrorDetail{Code: "INVALID_REQUEST", Message: "request body is not a valid turn"},
			Trace: types.TraceRef{RequestID: requestID},
		})
		return
	}
	if dec.More() {
		writeJSON(w, http.StatusBadRequest, types.ErrorEnvelope{
			Error: types.ErrorDetail{Code: "INVALID_REQUEST", Message: "trailing content after the turn"},
			Trace: types.TraceRef{RequestID: requestID},
		})
		return
	}

	start := time.Now()
	resp := s.turns.HandleTurn(r.Context(), req, requestID)
	logging.API("POST /v1/turn request_id=%s status=%d elapsed=%v", requestID, resp.HTTPStatus, time.Since(start).Round(time.Millisecond))
	writeJSON(w, resp.HTTPStatus, resp.Body())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryAPI).Warn("writing response failed: %v", err)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docsync/internal/config"
	"docsync/internal/domain"
	"docsync/internal/metrics"
	"docsync/internal/models"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// HTTPServer exposes the sync engine over HTTP.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    domain.SyncService
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc domain.SyncService, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, svc: svc, logger: &l}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/document", srv.handleDocument)
	mux.HandleFunc("/api/v1/pull", srv.handlePull)
	mux.HandleFunc("/api/v1/retry", srv.handleRetry)
	mux.HandleFunc("/api/v1/status", srv.handleStatus)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := loggingMiddleware(srv.logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped HTTP handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("document")

	switch r.Method {
	case http.MethodGet:
		doc, res := s.svc.Get(r.Context())
		if !res.Success {
			writeJSON(w, http.StatusInternalServerError, res)
			return
		}
		if doc == nil {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": doc})

	case http.MethodPost:
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		doc, err := models.DecodeDocument(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "body must be a JSON object")
			return
		}
		writeResult(w, s.svc.Push(r.Context(), doc), http.StatusBadGateway)

	case http.MethodDelete:
		writeResult(w, s.svc.Clear(r.Context()), http.StatusInternalServerError)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handlePull(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("pull")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeResult(w, s.svc.Pull(r.Context()), http.StatusBadGateway)
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("retry")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeResult(w, s.svc.Retry(r.Context()), http.StatusBadGateway)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeResult writes res with 200 on success and failStatus otherwise.
func writeResult(w http.ResponseWriter, res models.Result, failStatus int) {
	if res.Success {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, failStatus, res)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

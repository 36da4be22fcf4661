// Package httpapi exposes the local status endpoints: instance status,
// active modules, the latest metadata record, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/health"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/metric"
	"github.com/oneshot2001/axion/module"
)

// PipelineView is the read-only pipeline surface the API serves.
type PipelineView interface {
	Descriptors() []module.Descriptor
	Latest() (metadata.Snapshot, bool)
	Health() *health.Tracker
}

// Server serves the local HTTP API.
type Server struct {
	addr     string
	cameraID string
	pipeline PipelineView
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// NewServer creates a server bound to addr.
func NewServer(addr, cameraID string, pipeline PipelineView, metrics *metric.Metrics, logger *slog.Logger) (*Server, error) {
	if addr == "" || pipeline == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "NewServer", "server configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:     addr,
		cameraID: cameraID,
		pipeline: pipeline,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /modules", s.handleModules)
	mux.HandleFunc("GET /detections", s.handleDetections)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "Server", "Run", "graceful shutdown")
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.WrapFatal(err, "Server", "Run", "listener")
	}
}

type statusResponse struct {
	CameraID string          `json:"camera_id"`
	Modules  int             `json:"modules"`
	Health   health.Snapshot `json:"health"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, statusResponse{
		CameraID: s.cameraID,
		Modules:  len(s.pipeline.Descriptors()),
		Health:   s.pipeline.Health().Snapshot(),
	})
}

type moduleInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Priority int    `json:"priority"`
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	descs := s.pipeline.Descriptors()
	out := make([]moduleInfo, len(descs))
	for i, d := range descs {
		out[i] = moduleInfo{Name: d.Name, Version: d.Version, Priority: d.Priority}
	}
	s.writeJSON(w, out)
}

func (s *Server) handleDetections(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.pipeline.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}

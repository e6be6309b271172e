package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/executor"
)

// statusServer serves /health and a JSON /status of the running graph.
type statusServer struct {
	srv      *http.Server
	listener net.Listener
}

// startStatusServer listens on port and serves in the background. Port 0
// picks a free port.
func startStatusServer(ctx context.Context, port int, pipeline string, snapshot func() []executor.NodeStatus) (*statusServer, error) {
	logger := ctxlog.FromContext(ctx)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := struct {
			Pipeline string                `json:"pipeline"`
			Nodes    []executor.NodeStatus `json:"nodes"`
		}{Pipeline: pipeline, Nodes: snapshot()}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Warn("Failed to write status.", "error", err)
		}
	})

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("status server: %w", err)
	}
	s := &statusServer{srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}, listener: ln}
	go func() {
		logger.Info("Status server starting.", "address", fmt.Sprintf("http://%s/status", ln.Addr()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly.", "error", err)
		}
	}()
	return s, nil
}

// Addr is the address the server listens on.
func (s *statusServer) Addr() string { return s.listener.Addr().String() }

func (s *statusServer) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		ctxlog.FromContext(ctx).Error("Status server shutdown failed.", "error", err)
		return err
	}
	ctxlog.FromContext(ctx).Debug("Status server shut down gracefully.")
	return nil
}

// Package healthcheck exposes a minimal liveness endpoint for channel
// runtime processes.
package healthcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// NormalizeListen trims the configured listen address. A bare port like
// ":8391" is kept as-is; empty input disables the listener.
func NormalizeListen(addr string) string {
	return strings.TrimSpace(addr)
}

// StartServer serves GET /health on addr until ctx is canceled. The caller
// owns the returned server and should Shutdown it on exit.
func StartServer(ctx context.Context, logger *slog.Logger, addr, mode string) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		payload := map[string]any{
			"ok":   true,
			"time": time.Now().UTC().Format(time.RFC3339Nano),
			"mode": mode,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		// Record the bound address so callers using ":0" can find the port.
		Addr:              listener.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("health_server_error", "error", serveErr.Error())
		}
	}()

	logger.Info("health_server_start", "addr", listener.Addr().String(), "mode", mode)
	return server, nil
}

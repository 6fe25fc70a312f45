// Package healthcheck serves a minimal liveness endpoint on its own
// listener so operators can probe the process without touching the
// webhook surface.
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

// NormalizeListen trims the configured address and accepts a bare port
// ("8081") as shorthand for ":8081". Empty means disabled.
func NormalizeListen(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, ":") {
		return ":" + raw
	}
	return raw
}

// StartServer begins serving GET /health on listen in a background
// goroutine. The returned server should be shut down by the caller.
func StartServer(ctx context.Context, logger *slog.Logger, listen, mode string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		payload := map[string]any{
			"ok":   true,
			"time": time.Now().Format(time.RFC3339Nano),
		}
		if mode != "" {
			payload["mode"] = mode
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	})

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Warn("health_server_error", "addr", listen, "error", serveErr.Error())
		}
	}()
	logger.Info("health_server_started", "addr", ln.Addr().String(), "mode", mode)
	return srv, nil
}

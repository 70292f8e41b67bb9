package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"igrelay/pkg/config"
	"igrelay/pkg/logger"
)

// Server is the keep-alive web server. Free hosting platforms put services to
// sleep when nothing hits their HTTP port, so the server exposes a status
// page and pings its own external URL on a timer to stay awake.
type Server struct {
	cfg        *config.WebConfig
	logger     logger.Logger
	httpServer *http.Server
	client     *http.Client
	startedAt  time.Time

	mu       sync.RWMutex
	botName  string
	lastPing time.Time
}

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<title>igrelay</title>
<meta http-equiv="refresh" content="30">
<style>
body { font-family: sans-serif; max-width: 40em; margin: 3em auto; color: #222; }
.ok { color: #2a7d2a; font-weight: bold; }
td { padding: 0.2em 1em 0.2em 0; }
</style>
</head>
<body>
<h1>igrelay</h1>
<p class="ok">Bot is running</p>
<table>
<tr><td>Bot</td><td>@{{.BotName}}</td></tr>
<tr><td>Uptime</td><td>{{.Uptime}}</td></tr>
<tr><td>Last self-ping</td><td>{{.LastPing}}</td></tr>
</table>
</body>
</html>
`))

// New creates the keep-alive server
func New(cfg *config.WebConfig, log logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    log,
		client:    &http.Client{Timeout: 10 * time.Second},
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// SetBotName records the bot username shown on the status page
func (s *Server) SetBotName(name string) {
	s.mu.Lock()
	s.botName = name
	s.mu.Unlock()
}

// Run serves until the context is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWithFields("web server listening", map[string]interface{}{
			"addr": s.cfg.ListenAddr,
		})
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.cfg.ExternalURL != "" {
		go s.selfPingLoop(ctx)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown failed: %w", err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// selfPingLoop hits the external URL on a timer so the host keeps us awake
func (s *Server) selfPingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	url := s.cfg.ExternalURL + "/ping"
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				continue
			}
			resp, err := s.client.Do(req)
			if err != nil {
				s.logger.WarnWithFields("self-ping failed", map[string]interface{}{
					"url":   url,
					"error": err.Error(),
				})
				continue
			}
			resp.Body.Close()

			s.mu.Lock()
			s.lastPing = time.Now()
			s.mu.Unlock()
		}
	}
}

// handleStatus renders the auto-refreshing status page
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	botName := s.botName
	lastPing := s.lastPing
	s.mu.RUnlock()

	lastPingText := "never"
	if !lastPing.IsZero() {
		lastPingText = lastPing.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = statusPage.Execute(w, map[string]string{
		"BotName":  botName,
		"Uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"LastPing": lastPingText,
	})
}

// handlePing answers keep-alive probes
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	lastPing := s.lastPing
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"last_ping": lastPing,
	})
}

// handleHealthz is a bare liveness endpoint
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

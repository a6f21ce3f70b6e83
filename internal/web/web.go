package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"epdtext/internal/battery"
	"epdtext/internal/config"
	appLog "epdtext/internal/log"
	"epdtext/internal/refresh"
	"epdtext/internal/transport"
)

// Queue accepts chunks for the refresh loop; transport.Queue implements it.
type Queue interface {
	Push(c transport.Chunk, reply chan<- []byte) error
	Len() int
}

// Previewer returns the last displayed frame as PNG.
type Previewer interface {
	PNG() ([]byte, time.Time, bool)
}

// Deps are the parts of the application the HTTP API talks to. Status,
// Preview and Battery may be nil.
type Deps struct {
	Queue   Queue
	Status  func() refresh.Status
	Preview Previewer
	Battery battery.Reader
	// AckTimeout bounds how long POST /api/text waits for the
	// acknowledgement of its chunk.
	AckTimeout time.Duration
}

// Server provides the HTTP API: text submission, redraw, status and
// preview.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux

	// In-memory cache for battery status. This avoids hitting I2C on every
	// single status call.
	batteryMu    sync.RWMutex
	batteryCache *batteryCache
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.AckTimeout <= 0 {
		deps.AckTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epdtext", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/text", s.handleText)
	s.mux.HandleFunc("/api/redraw", s.handleRedraw)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// textResponse is the JSON response shape for /api/text.
type textResponse struct {
	Queued bool   `json:"queued"`
	Bytes  int    `json:"bytes"`
	Ack    string `json:"ack,omitempty"`
}

// handleText queues the request body as one payload.
//
// POST /api/text
//   - body: the text, at most max_chunk bytes; the first line is the title.
//
// The response waits for the acknowledgement of the refresh loop, up to
// AckTimeout. 200 means acknowledged, 202 means queued but not yet seen.
func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	limit := s.cfg.MaxChunk
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds "+strconv.Itoa(limit)+" bytes")
		return
	}

	reply := make(chan []byte, 1)
	if err := s.deps.Queue.Push(transport.Chunk{Data: body}, reply); err != nil {
		appLog.Error("api text: queue rejected payload", err, "bytes", len(body))
		writeError(w, http.StatusServiceUnavailable, "display queue is full")
		return
	}
	appLog.Info("api text queued", "bytes", len(body), "remote", r.RemoteAddr)

	timer := time.NewTimer(s.deps.AckTimeout)
	defer timer.Stop()
	select {
	case ack := <-reply:
		writeJSON(w, http.StatusOK, textResponse{Queued: true, Bytes: len(body), Ack: string(ack)})
	case <-timer.C:
		writeJSON(w, http.StatusAccepted, textResponse{Queued: true, Bytes: len(body)})
	case <-r.Context().Done():
	}
}

// handleRedraw queues a full redraw of the last payload.
func (s *Server) handleRedraw(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.deps.Queue.Push(transport.Chunk{Redraw: true}, nil); err != nil {
		writeError(w, http.StatusServiceUnavailable, "display queue is full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	Mode             string          `json:"mode"`
	Queued           int             `json:"queued"`
	Refresh          *refresh.Status `json:"refresh,omitempty"`
	Battery          *battery.Status `json:"battery,omitempty"`
	PreviewAvailable bool            `json:"preview_available"`
}

// batteryCache holds the last known battery status and its timestamp.
type batteryCache struct {
	status    battery.Status
	updatedAt time.Time
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp := statusResponse{
		Mode:   s.cfg.Mode,
		Queued: s.deps.Queue.Len(),
	}
	if s.deps.Status != nil {
		st := s.deps.Status()
		resp.Refresh = &st
	}
	if s.deps.Preview != nil {
		_, _, resp.PreviewAvailable = s.deps.Preview.PNG()
	}
	if b, ok := s.batteryStatus(r.Context()); ok {
		resp.Battery = &b
	}
	writeJSON(w, http.StatusOK, resp)
}

// batteryStatus returns the cached battery status, reading the gauge when
// the cache is older than its TTL. Battery status does not need sub-second
// precision.
func (s *Server) batteryStatus(ctx context.Context) (battery.Status, bool) {
	if s.deps.Battery == nil {
		return battery.Status{}, false
	}

	const batteryCacheTTL = 30 * time.Second
	now := time.Now()

	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && now.Sub(bc.updatedAt) < batteryCacheTTL {
		return bc.status, true
	}

	status, err := s.deps.Battery.Read(ctx)
	if err != nil {
		appLog.Error("battery read failed", err)
		return battery.Status{}, false
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{
		status:    status,
		updatedAt: time.Now(),
	}
	s.batteryMu.Unlock()
	return status, true
}

// handlePreview serves the last displayed frame.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Preview == nil {
		http.NotFound(w, r)
		return
	}
	png, at, ok := s.deps.Preview.PNG()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

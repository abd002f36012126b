// Package callback exposes the HTTP endpoint a CallbackStep's external
// action posts back to, resolving the single-use token in the URL back to
// the suspended process and resuming it — potentially days after it
// suspended, since resolution goes through the durable ProcessStatStore
// rather than an in-memory channel.
package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	orchestrator "github.com/RichieB2B/orchestrator-core"
)

// Server mounts the callback route and resumes a process on every valid
// POST to it.
type Server struct {
	store  orchestrator.ProcessStatStore
	writer orchestrator.LogWriter
	driver *orchestrator.Driver
	logger *slog.Logger

	mux *http.ServeMux
	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server's logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New builds a Server resuming processes in store, writing results with
// writer, through driver.
func New(store orchestrator.ProcessStatStore, writer orchestrator.LogWriter, driver *orchestrator.Driver, opts ...Option) *Server {
	s := &Server{store: store, writer: writer, driver: driver, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc(orchestrator.CallbackRoutePrefix, s.handleCallback)
	return s
}

// Handler returns the http.Handler for external mux mounting.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr and serves the callback route. Returns once the
// listener is established; the server runs until Close is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	ln, err := newListener(addr)
	if err != nil {
		return fmt.Errorf("callback: listen %s: %w", addr, err)
	}
	go s.srv.Serve(ln)
	return nil
}

// Close shuts down the server with a bounded drain timeout.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// handleCallback parses /api/processes/{processID}/callback/{token}, loads
// the suspended process, merges the POSTed JSON body under its
// KeyCallbackResultKey, and resumes it.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	processID, token, ok := parseCallbackPath(r.URL.Path)
	if !ok {
		http.Error(w, "malformed callback path", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	pstat, err := s.store.FindByCallbackToken(ctx, token)
	if err != nil {
		s.logger.Warn("callback: unknown token", "token", token, "error", err)
		http.Error(w, "unknown or expired callback", http.StatusNotFound)
		return
	}
	if pstat.ProcessID != processID {
		http.Error(w, "token does not match process", http.StatusNotFound)
		return
	}
	if !pstat.State.IsAwaitingCallback() {
		http.Error(w, "process is not awaiting a callback", http.StatusConflict)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	state := pstat.State.Unwrap()
	resultKey, _ := state[orchestrator.KeyCallbackResultKey].(string)
	var merged orchestrator.State
	if resultKey != "" {
		merged = state.Merge(orchestrator.State{resultKey: payload})
	} else {
		merged = state.Merge(orchestrator.State(payload))
	}
	pstat.State = orchestrator.AwaitingCallback(merged)

	logFn := func(step orchestrator.Step, result orchestrator.Process) orchestrator.Process {
		return s.writer.WriteLog(ctx, pstat, step, result)
	}
	pstat.State = s.driver.RunWorkflow(ctx, pstat, logFn)

	if err := s.store.Save(ctx, pstat); err != nil {
		s.logger.Error("callback: save failed", "process_id", pstat.ProcessID, "error", err)
		http.Error(w, "failed to persist resumed process", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"process_id": pstat.ProcessID,
		"status":     pstat.State.Status(),
	})
}

// parseCallbackPath extracts processID and token from
// /api/processes/{processID}/callback/{token}.
func parseCallbackPath(path string) (processID, token string, ok bool) {
	trimmed := strings.TrimPrefix(path, orchestrator.CallbackRoutePrefix)
	parts := strings.SplitN(trimmed, "/callback/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

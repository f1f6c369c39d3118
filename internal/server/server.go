package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	boardnet "StudyBoard/internal/net"
	"StudyBoard/internal/syncer"
)

const maxBodyBytes = 10 << 20

// Config holds the HTTP settings of the reference server.
type Config struct {
	ListenAddr string
	// Token, when set, must be presented as a bearer token on the sync endpoints.
	Token string
}

// Server serves the whiteboard sync endpoints and session sockets.
type Server struct {
	config Config
	http   *http.Server
	store  Store
	hub    *boardnet.Hub
	logger *slog.Logger
	addr   net.Addr
}

// New creates a server backed by store whose sockets are relayed by hub.
func New(cfg Config, store Store, hub *boardnet.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		store:  store,
		hub:    hub,
		logger: logger.With("component", "server"),
	}
	s.http = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Start begins listening (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr()
	s.logger.Info("listening", "addr", s.addr.String())

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server", "err", err)
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() net.Addr { return s.addr }

// Shutdown stops accepting requests and disconnects every socket.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.hub.Close()
	return err
}

// Handler builds the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoveryMiddleware, s.loggingMiddleware)

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.handleHealth)

	wb := r.PathPrefix("/peer/whiteboard").Subrouter()
	wb.Use(s.authMiddleware)
	wb.Methods(http.MethodPost).Path("/sync").HandlerFunc(s.handleSync)
	wb.Methods(http.MethodGet).Path("/{session_id}").HandlerFunc(s.handleState)
	wb.Methods(http.MethodGet).Path("/{session_id}/ws").HandlerFunc(s.handleSocket)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncer.SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusUnprocessableEntity, "session_id is required")
		return
	}
	for i, op := range req.Operations {
		if op.Type == "" {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("operations[%d]: type is required", i))
			return
		}
	}

	userID := requestUser(r)
	version, err := s.store.Sync(r.Context(), req.SessionID, userID, req.Operations, req.Version)
	if err != nil {
		s.logger.Error("sync failed", "session", req.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	s.logger.Info("synced", "session", req.SessionID, "user", userID, "operations", len(req.Operations), "version", version)
	writeJSON(w, http.StatusOK, syncer.SyncResponse{Status: "synced", Version: version})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	st, err := s.store.State(r.Context(), sessionID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Whiteboard not found")
		return
	}
	if err != nil {
		s.logger.Error("load failed", "session", sessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "load failed")
		return
	}
	writeJSON(w, http.StatusOK, syncer.StateResponse{
		SessionID:  sessionID,
		Operations: st.Operations,
		Version:    st.Version,
	})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeSession(w, r, mux.Vars(r)["session_id"], requestUser(r))
}

func requestUser(r *http.Request) string {
	if id := r.Header.Get(syncer.UserHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	return "anonymous"
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.config.Token {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled", "method", r.Method, "path", r.URL.Path, "status", m.Code,
			"duration", m.Duration, "bytes", m.Written)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with a {"detail": msg} body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// Package httpapi serves the device-local observability API: sync status,
// dead-letter inspection, manual drain, and a websocket status stream.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/shiftwise/clocksync/internal/clocksync"
)

// SyncController is the slice of the coordinator the API needs.
type SyncController interface {
	Status() clocksync.Status
	ListFailed() ([]clocksync.Operation, error)
	ClearFailed() (int, error)
	Drain()
}

type ServerConfig struct {
	// AuthToken, when set, is required as a bearer token on every route
	// except /healthz.
	AuthToken string

	// StreamInterval is how often the websocket stream pushes a status
	// snapshot. Default 2s.
	StreamInterval time.Duration

	Logger *log.Logger
}

type Server struct {
	coord SyncController
	cfg   ServerConfig
}

func NewServer(coord SyncController, cfg ServerConfig) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[httpapi] ", log.LstdFlags)
	}
	return &Server{coord: coord, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return
	}

	switch {
	case r.URL.Path == "/v1/sync/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.coord.Status())
	case r.URL.Path == "/v1/sync/dead-letters" && r.Method == http.MethodGet:
		s.handleDeadLetters(w)
	case r.URL.Path == "/v1/sync/dead-letters/clear" && r.Method == http.MethodPost:
		s.handleClearDeadLetters(w)
	case r.URL.Path == "/v1/sync/drain" && r.Method == http.MethodPost:
		s.coord.Drain()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "drain requested"})
	case r.URL.Path == "/v1/sync/stream" && r.Method == http.MethodGet:
		s.handleStream(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) == s.cfg.AuthToken
}

func (s *Server) handleDeadLetters(w http.ResponseWriter) {
	ops, err := s.coord.ListFailed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if ops == nil {
		ops = []clocksync.Operation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

func (s *Server) handleClearDeadLetters(w http.ResponseWriter) {
	cleared, err := s.coord.ClearFailed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// handleStream upgrades to a websocket and pushes a status snapshot
// immediately and then on every interval tick until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.cfg.Logger.Printf("websocket accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()
	for {
		data, err := json.Marshal(s.coord.Status())
		if err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// Package api provides the operational HTTP surface for the world
// store. GET endpoints are read-only observation; POST endpoints drive
// repairs and require a bearer token.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tribelands/server/internal/persistence"
	"github.com/tribelands/server/internal/repair"
)

const diagnosticsSample = 25

// Server exposes store status and repair entry points over HTTP.
type Server struct {
	Ctrl     *persistence.Controller
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	// Repairs rewrite the whole world; keep trigger-happy operators honest.
	repairLimiter := newRateLimiter(6, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/v1/reconcile", s.adminOnly(repairLimiter.wrap(s.handleReconcile)))
	mux.HandleFunc("/api/v1/backup", s.adminOnly(repairLimiter.wrap(s.handleBackup)))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("ops API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("ops API server error", "error", err)
		}
	}()
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" || r.Header.Get("Authorization") != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Ctrl.GetWorldState(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := map[string]any{
		"mode":  persistence.ModeName(s.Ctrl.Mode()),
		"world": ws != nil,
	}
	if ws != nil {
		status["turn"] = ws.Turn
		status["tribes"] = len(ws.Tribes)
		status["hexes"] = len(ws.Hexes)
		status["suspended"] = ws.Suspended
	}
	writeJSON(w, status)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Ctrl.GetWorldState(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ws == nil {
		http.Error(w, "no world state", http.StatusNotFound)
		return
	}
	writeJSON(w, repair.Diagnose(ws, diagnosticsSample))
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Ctrl.GetWorldState(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ws == nil {
		http.Error(w, "no world state", http.StatusNotFound)
		return
	}

	changed := repair.ReconcileAllOwnership(ws)
	if changed > 0 {
		if err := s.Ctrl.PersistWorldState(r.Context(), ws, persistence.PersistOptions{}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, map[string]int{"corrections": changed})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Ctrl.GetWorldState(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ws == nil {
		http.Error(w, "no world state", http.StatusNotFound)
		return
	}

	path, err := repair.BackupGarrisonCoords(ws, s.Ctrl.BackupDir())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"path": path})
}

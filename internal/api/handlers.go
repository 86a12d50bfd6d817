package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/manpreetbhatti/easel/internal/db"
	"github.com/manpreetbhatti/easel/internal/room"
	"github.com/sirupsen/logrus"
)

// ClientCounter reports live WebSocket connections
type ClientCounter interface {
	ClientCount() int
}

// SessionStore is the read side of the activity database
type SessionStore interface {
	ListSessions(ctx context.Context, roomCode string, limit, offset int) ([]db.RoomSession, error)
	CountSessions(ctx context.Context, roomCode string) (int, error)
	GetTotals(ctx context.Context) (db.Totals, error)
}

type API struct {
	rooms    *room.Registry
	clients  ClientCounter
	database SessionStore
	log      *logrus.Entry
}

func New(rooms *room.Registry, clients ClientCounter, database SessionStore, log *logrus.Entry) *API {
	return &API{
		rooms:    rooms,
		clients:  clients,
		database: database,
		log:      log.WithField("component", "api"),
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.WithError(err).Error("Error encoding JSON response")
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.rooms.Len(),
		"active_clients": a.clients.ClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		totals, err := a.database.GetTotals(r.Context())
		if err != nil {
			a.log.WithError(err).Warn("Failed to read session totals")
		} else {
			stats["total_sessions"] = totals.Sessions
			stats["total_operations"] = totals.Operations
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	Code         string                      `json:"code"`
	CreatedAt    time.Time                   `json:"created_at"`
	Participants int                         `json:"participants"`
	HistorySize  int                         `json:"history_size"`
	RedoSize     int                         `json:"redo_size"`
	Users        map[string]room.Participant `json:"users,omitempty"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	active := a.rooms.Active()
	response := make([]RoomResponse, len(active))
	for i, info := range active {
		response[i] = RoomResponse{
			Code:         info.Code,
			CreatedAt:    info.CreatedAt.UTC(),
			Participants: info.Participants,
			HistorySize:  info.HistorySize,
			RedoSize:     info.RedoSize,
		}
	}

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": response,
		"total": len(response),
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Extract room code from path: /api/rooms/{code}
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	code := strings.TrimSuffix(path, "/")

	if code == "" {
		a.errorResponse(w, http.StatusBadRequest, "Room code is required")
		return
	}

	rm, ok := a.rooms.Get(code)
	if !ok {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	response := RoomResponse{Code: rm.Code, CreatedAt: rm.CreatedAt.UTC()}
	err := rm.Do(func(s *room.State) {
		response.Users = s.Participants()
		response.Participants = len(response.Users)
		response.HistorySize = s.HistoryLen()
		response.RedoSize = s.RedoLen()
	})
	if err != nil {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	a.jsonResponse(w, http.StatusOK, response)
}

func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")

	if r.Method != http.MethodGet {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// /api/rooms or /api/rooms/
	if path == "" || path == "/" {
		a.ListRoomsHandler(w, r)
		return
	}

	// /api/rooms/{code}
	a.GetRoomHandler(w, r)
}

// Session history handlers

func (a *API) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if a.database == nil {
		a.errorResponse(w, http.StatusServiceUnavailable, "Session history unavailable")
		return
	}

	roomCode := r.URL.Query().Get("room")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	sessions, err := a.database.ListSessions(r.Context(), roomCode, limit, offset)
	if err != nil {
		a.log.WithError(err).Error("Failed to list sessions")
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	total, err := a.database.CountSessions(r.Context(), roomCode)
	if err != nil {
		a.log.WithError(err).Warn("Failed to count sessions")
	}

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// Routes mounts every endpoint on mux
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", a.HealthHandler)
	mux.HandleFunc("/api/stats", a.StatsHandler)
	mux.HandleFunc("/api/rooms", a.RoomsRouter)
	mux.HandleFunc("/api/rooms/", a.RoomsRouter)
	mux.HandleFunc("/api/sessions", a.ListSessionsHandler)
}

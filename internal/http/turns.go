package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/turnbuf/internal/store"
)

// TurnsHandler serves the persisted turn log.
type TurnsHandler struct {
	turns store.TurnStore
	token string
}

// NewTurnsHandler creates a handler for turn log endpoints.
func NewTurnsHandler(turns store.TurnStore, token string) *TurnsHandler {
	return &TurnsHandler{turns: turns, token: token}
}

// RegisterRoutes registers all turn log routes on the given mux.
func (h *TurnsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/turns", authMiddleware(h.token, h.handleList))
}

func (h *TurnsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	f := store.TurnFilter{UserID: r.URL.Query().Get("user_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	turns, err := h.turns.ListTurns(r.Context(), f)
	if err != nil {
		slog.Warn("list turns failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list turns")
		return
	}
	if turns == nil {
		turns = []store.TurnRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/freeeve/warband/internal/auth"
	"github.com/freeeve/warband/internal/logger"
	"github.com/freeeve/warband/internal/service"
	"github.com/freeeve/warband/pkg/actionlog"
)

// TurnHandler serves the per-turn action log.
type TurnHandler struct {
	turns *service.TurnLogService
}

// NewTurnHandler creates a TurnHandler.
func NewTurnHandler(turns *service.TurnLogService) *TurnHandler {
	return &TurnHandler{turns: turns}
}

func turnParam(r *http.Request) (int, bool) {
	turn, err := strconv.Atoi(r.PathValue("turn"))
	if err != nil || turn < 0 {
		return 0, false
	}
	return turn, true
}

// Append handles POST /api/v1/games/{id}/turns/{turn}/actions.
// Body: {"kind": "move", "data": {...}}.
func (h *TurnHandler) Append(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	gameID := r.PathValue("id")
	turn, ok := turnParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid turn")
		return
	}

	var body struct {
		Kind actionlog.Kind  `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Data) == 0 {
		body.Data = json.RawMessage("{}")
	}
	action, err := actionlog.Decode(body.Kind, body.Data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ctx := logger.WithGameID(r.Context(), gameID)
	saved, err := h.turns.Append(ctx, gameID, userID, turn, action)
	if err != nil {
		writeServiceError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// List handles GET /api/v1/games/{id}/turns/{turn}/actions.
func (h *TurnHandler) List(w http.ResponseWriter, r *http.Request) {
	turn, ok := turnParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid turn")
		return
	}
	records, err := h.turns.Actions(r.Context(), r.PathValue("id"), turn)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

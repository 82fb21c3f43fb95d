package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/freeeve/warband/internal/auth"
	"github.com/freeeve/warband/internal/logger"
	"github.com/freeeve/warband/internal/service"
)

const maxSimulatedFights = 10000

// BattleHandler serves battle resolution, replay and simulation.
type BattleHandler struct {
	battles *service.BattleService
}

// NewBattleHandler creates a BattleHandler.
func NewBattleHandler(battles *service.BattleService) *BattleHandler {
	return &BattleHandler{battles: battles}
}

// Resolve handles POST /api/v1/games/{id}/battles. Evaluation fights answer
// 200 and are not stored; fights for keeps answer 201.
func (h *BattleHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	gameID := r.PathValue("id")
	ctx := logger.WithGameID(r.Context(), gameID)

	var req service.BattleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.battles.Resolve(ctx, gameID, userID, req)
	if err != nil {
		writeServiceError(w, r.WithContext(ctx), err)
		return
	}

	status := http.StatusCreated
	if req.Evaluation {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// List handles GET /api/v1/games/{id}/battles.
func (h *BattleHandler) List(w http.ResponseWriter, r *http.Request) {
	battles, err := h.battles.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if battles == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, battles)
}

// Get handles GET /api/v1/battles/{battleId}.
func (h *BattleHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.battles.Get(r.Context(), r.PathValue("battleId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Replay handles POST /api/v1/battles/{battleId}/replay. The body carries
// the caller's own starting groups; an empty body replays the stored setup.
func (h *BattleHandler) Replay(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	battleID := r.PathValue("battleId")

	var req service.ReplayRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.battles.Replay(r.Context(), battleID, userID, req)
	if err != nil {
		if errors.Is(err, service.ErrLogMismatch) {
			l := logger.ForBattle(r.Context(), battleID)
			l.Warn().Str("userId", userID).Err(err).Msg("Peer state diverged")
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Simulate handles POST /api/v1/simulations: a batch of evaluation fights
// over one setup.
func (h *BattleHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req service.SimulateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Fights > maxSimulatedFights {
		writeError(w, http.StatusBadRequest, "too many fights")
		return
	}
	req.Workers = min(max(req.Workers, 1), 8)

	report, err := h.battles.Simulate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type unitTypeView struct {
	Name         string   `json:"name"`
	Strength     int      `json:"strength"`
	BoatStrength int      `json:"boat_strength"`
	HitPoints    int      `json:"hit_points"`
	Upkeep       int      `json:"upkeep"`
	Leader       bool     `json:"leader,omitempty"`
	Abilities    []string `json:"abilities,omitempty"`
}

// Units handles GET /api/v1/units: the catalog battles are built from.
func (h *BattleHandler) Units(w http.ResponseWriter, r *http.Request) {
	catalog := h.battles.Catalog()
	out := struct {
		FightOrder []string       `json:"fight_order"`
		Units      []unitTypeView `json:"units"`
	}{FightOrder: catalog.FightOrder()}

	for _, name := range catalog.Names() {
		t, _ := catalog.Lookup(name)
		v := unitTypeView{
			Name:         t.Name,
			Strength:     t.Strength,
			BoatStrength: t.BoatStrength,
			HitPoints:    t.HitPoints,
			Upkeep:       t.Upkeep,
			Leader:       t.Leader,
		}
		if s := t.Abilities.String(); s != "" {
			v.Abilities = strings.Split(s, ",")
		}
		out.Units = append(out.Units, v)
	}
	writeJSON(w, http.StatusOK, out)
}

package handler

import (
	"net/http"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warband/internal/auth"
)

var devNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)

// AuthHandler issues peer tokens.
type AuthHandler struct {
	jwtMgr  *auth.JWTManager
	devMode bool
}

// NewAuthHandler creates an AuthHandler. Dev login answers 404 unless devMode
// is set.
func NewAuthHandler(jwtMgr *auth.JWTManager, devMode bool) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr, devMode: devMode}
}

// DevLogin handles POST /auth/dev?name=alice. The name becomes the peer's
// user id.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name parameter")
		return
	}
	if !devNamePattern.MatchString(name) {
		writeError(w, http.StatusBadRequest, "name must be 1-32 letters, digits, '-' or '_'")
		return
	}

	tokens, err := h.jwtMgr.GenerateTokenPair(name)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to generate dev tokens")
		writeError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	log.Info().Str("userId", name).Msg("Dev login")
	writeJSON(w, http.StatusOK, tokens)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims, err := h.jwtMgr.ValidateFor(req.RefreshToken, auth.UseRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	tokens, err := h.jwtMgr.GenerateTokenPair(claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

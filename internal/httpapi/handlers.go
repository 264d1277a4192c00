package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

// PlayerHeader carries the acting player's id on action requests.
const PlayerHeader = "X-Player-ID"

type MatchHandler struct {
	eng *engine.Engine
	log *zap.Logger
}

func NewMatchHandler(eng *engine.Engine, log *zap.Logger) *MatchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatchHandler{eng: eng, log: log}
}

func (h *MatchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/games", h.listGames)
	r.Post("/matches", h.createMatch)
	r.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/", h.getMatch)
		r.Post("/players", h.joinMatch)
		r.Delete("/players/{player}", h.leaveMatch)
		r.Post("/start", h.startGame)
		r.Post("/actions", h.processAction)
		r.Post("/timeout", h.timeout)
		r.Post("/resume", h.resumeRound)
		r.Post("/finalize", h.finalize)
	})
}

type createMatchRequest struct {
	GameType string          `json:"gameType"`
	Settings engine.Settings `json:"settings"`
	Players  []string        `json:"players"`
}

type joinRequest struct {
	PlayerID string `json:"playerId"`
}

type actionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type timeoutRequest struct {
	PlayerID string `json:"playerId"`
	engine.TimeoutRequest
}

func (h *MatchHandler) listGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Games []string `json:"games"`
	}{Games: h.eng.Games().Types()})
}

func (h *MatchHandler) createMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.eng.Create(r.Context(), req.GameType, req.Settings, req.Players)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *MatchHandler) getMatch(w http.ResponseWriter, r *http.Request) {
	st, err := h.eng.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *MatchHandler) joinMatch(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.eng.Join(r.Context(), chi.URLParam(r, "id"), req.PlayerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *MatchHandler) leaveMatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.Leave(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "player"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MatchHandler) startGame(w http.ResponseWriter, r *http.Request) {
	st, err := h.eng.StartGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *MatchHandler) processAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "missing action", "bad_request")
		return
	}
	res, err := h.eng.ProcessAction(r.Context(), chi.URLParam(r, "id"), r.Header.Get(PlayerHeader), req.Action, req.Payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MatchHandler) timeout(w http.ResponseWriter, r *http.Request) {
	var req timeoutRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := h.eng.Timeout(r.Context(), chi.URLParam(r, "id"), req.PlayerID, req.TimeoutRequest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MatchHandler) resumeRound(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.ResumeRound(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MatchHandler) finalize(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.eng.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Ranking []engine.Standing `json:"ranking"`
	}{Ranking: ranking})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *MatchHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error(), engine.ErrorCode(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownGame), errors.Is(err, engine.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrPlayerNotActive):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrHandlerRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrMatchExists), engine.IsRejection(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json", "bad_request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}{Error: msg, Code: code})
}

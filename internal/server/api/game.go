package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/app"
)

// GameHandler exposes the memory game.
type GameHandler struct {
	app *app.App
}

// NewGameHandler creates a GameHandler for a.
func NewGameHandler(a *app.App) *GameHandler {
	return &GameHandler{app: a}
}

// Routes registers the game endpoints on r.
func (h *GameHandler) Routes(r *mux.Router) {
	r.HandleFunc("/game", h.get).Methods(http.MethodGet)
	r.HandleFunc("/game/start", h.start).Methods(http.MethodPost)
	r.HandleFunc("/game/new", h.newGame).Methods(http.MethodPost)
	r.HandleFunc("/game/reset-stats", h.resetStats).Methods(http.MethodPost)
}

// get handles GET /api/game.
func (h *GameHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Game().Snapshot())
}

// start handles POST /api/game/start. The game only runs in simon mode.
func (h *GameHandler) start(w http.ResponseWriter, r *http.Request) {
	if h.app.Mode() != app.ModeSimon {
		writeError(w, http.StatusConflict, "Game mode is not active")
		return
	}
	h.app.Game().Start(time.Now())
	writeJSON(w, http.StatusOK, h.app.Game().Snapshot())
}

// newGame handles POST /api/game/new.
func (h *GameHandler) newGame(w http.ResponseWriter, r *http.Request) {
	h.app.Game().NewGame()
	writeJSON(w, http.StatusOK, h.app.Game().Snapshot())
}

// resetStats handles POST /api/game/reset-stats.
func (h *GameHandler) resetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Game().ResetStats(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset stats")
		return
	}
	writeJSON(w, http.StatusOK, h.app.Game().Snapshot())
}

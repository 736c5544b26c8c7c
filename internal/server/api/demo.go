package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/simon"
	"github.com/ayusman/mudra/internal/videocontrol"
)

// DemoHandler controls the demo lifecycle.
type DemoHandler struct {
	app *app.App
}

// NewDemoHandler creates a DemoHandler for a.
func NewDemoHandler(a *app.App) *DemoHandler {
	return &DemoHandler{app: a}
}

// Routes registers the demo endpoints on r.
func (h *DemoHandler) Routes(r *mux.Router) {
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/gestures", h.gestures).Methods(http.MethodGet)
	r.HandleFunc("/demo/activate", h.activate).Methods(http.MethodPost)
	r.HandleFunc("/demo/deactivate", h.deactivate).Methods(http.MethodPost)
	r.HandleFunc("/demo/restart", h.restart).Methods(http.MethodPost)
	r.HandleFunc("/demo/retry", h.retry).Methods(http.MethodPost)
}

type activateRequest struct {
	Mode app.Mode `json:"mode"`
}

type failureResponse struct {
	Error  string     `json:"error"`
	Status app.Status `json:"status"`
}

type gestureResponse struct {
	Label  gesture.Label       `json:"label"`
	Name   string              `json:"name"`
	Action videocontrol.Action `json:"action,omitempty"`
	InGame bool                `json:"in_game"`
}

// status handles GET /api/status.
func (h *DemoHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Status())
}

// gestures handles GET /api/gestures and lists the recognizable gestures with
// what each one does.
func (h *DemoHandler) gestures(w http.ResponseWriter, r *http.Request) {
	out := make([]gestureResponse, 0, len(gesture.Labels))
	for _, l := range gesture.Labels {
		g := gestureResponse{Label: l, Name: l.DisplayName()}
		if a, ok := videocontrol.ActionFor(l); ok {
			g.Action = a
		}
		for _, p := range simon.Pool {
			if p == l {
				g.InGame = true
			}
		}
		out = append(out, g)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"gestures": out})
}

// activate handles POST /api/demo/activate.
func (h *DemoHandler) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid mode")
		return
	}

	if err := h.app.Activate(r.Context(), req.Mode); err != nil {
		h.failed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}

// deactivate handles POST /api/demo/deactivate.
func (h *DemoHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.app.Deactivate()
	writeJSON(w, http.StatusOK, h.app.Status())
}

// restart handles POST /api/demo/restart.
func (h *DemoHandler) restart(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Restart(r.Context()); err != nil {
		h.failed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}

// retry handles POST /api/demo/retry.
func (h *DemoHandler) retry(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Retry(r.Context()); err != nil {
		h.failed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}

func (h *DemoHandler) failed(w http.ResponseWriter, err error) {
	st := h.app.Status()
	if errors.Is(err, app.ErrNotActive) {
		writeJSON(w, http.StatusConflict, failureResponse{Error: "Demo is not active", Status: st})
		return
	}
	if errors.Is(err, app.ErrCancelled) {
		writeJSON(w, http.StatusConflict, failureResponse{Error: "Demo was stopped", Status: st})
		return
	}
	msg := err.Error()
	if st.Error != nil {
		msg = st.Error.Message
	}
	writeJSON(w, http.StatusServiceUnavailable, failureResponse{Error: msg, Status: st})
}

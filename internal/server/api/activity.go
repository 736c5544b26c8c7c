package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/store"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ActivityHandler lists the activity log.
type ActivityHandler struct {
	store *store.Store
}

// NewActivityHandler creates an ActivityHandler with the given store.
func NewActivityHandler(s *store.Store) *ActivityHandler {
	return &ActivityHandler{store: s}
}

// Routes registers the activity endpoints on r.
func (h *ActivityHandler) Routes(r *mux.Router) {
	r.HandleFunc("/activity", h.list).Methods(http.MethodGet)
	r.HandleFunc("/activity/{id}", h.get).Methods(http.MethodGet)
}

var activityKinds = map[store.ActivityKind]bool{
	store.ActivityDemo:        true,
	store.ActivityEasterEgg:   true,
	store.ActivityVideoAction: true,
	store.ActivityGame:        true,
	store.ActivityError:       true,
}

// list handles GET /api/activity?kind=&limit=.
func (h *ActivityHandler) list(w http.ResponseWriter, r *http.Request) {
	kind := store.ActivityKind(r.URL.Query().Get("kind"))
	if kind != "" && !activityKinds[kind] {
		writeError(w, http.StatusBadRequest, "Invalid activity kind")
		return
	}

	limit := defaultActivityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := h.store.Activity().List(r.Context(), kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activity")
		return
	}
	if entries == nil {
		entries = []*store.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

// get handles GET /api/activity/{id}.
func (h *ActivityHandler) get(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Activity().GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get activity")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

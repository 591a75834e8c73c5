package api

import (
	"net/http"
	"strconv"

	"github.com/garnizeh/iisa/internal/candidates"
	"github.com/garnizeh/iisa/internal/geo"
	"github.com/garnizeh/iisa/pkg/models"
	"github.com/gorilla/mux"
)

type DashboardHandler struct {
	store  *candidates.Store
	lookup *geo.Lookup
}

func NewDashboardHandler(store *candidates.Store, lookup *geo.Lookup) *DashboardHandler {
	return &DashboardHandler{store: store, lookup: lookup}
}

type dashboardResponse struct {
	Stats   models.DashboardStats `json:"stats"`
	Markers []models.City         `json:"markers"`
	Cities  []string              `json:"cities"`
}

func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	cities := h.store.Cities()
	writeJSON(w, dashboardResponse{
		Stats:   h.store.DashboardStats(),
		Markers: h.lookup.Markers(cities),
		Cities:  cities,
	}, http.StatusOK)
}

func (h *DashboardHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := candidates.Filter{Term: q.Get("q"), City: q.Get("city")}

	var ok bool
	if f.MinAge, ok = ageParam(q.Get("minAge")); !ok {
		writeError(w, "invalid minAge", http.StatusBadRequest)
		return
	}
	if f.MaxAge, ok = ageParam(q.Get("maxAge")); !ok {
		writeError(w, "invalid maxAge", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.store.Search(f), http.StatusOK)
}

// DeleteCandidate is the administrative delete. It obeys the same edit
// window as self-service deletion.
func (h *DashboardHandler) DeleteCandidate(w http.ResponseWriter, r *http.Request) {
	if !h.store.Remove(r.Context(), mux.Vars(r)["id"]) {
		writeError(w, "candidate not found or no longer editable", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ageParam(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

package api

import (
	"net/http"

	"github.com/garnizeh/iisa/internal/geo"
)

type CitiesHandler struct {
	lookup *geo.Lookup
}

func NewCitiesHandler(lookup *geo.Lookup) *CitiesHandler {
	return &CitiesHandler{lookup: lookup}
}

// ListCities serves the city autocomplete; ?q= filters by substring.
func (h *CitiesHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.lookup.Filter(r.URL.Query().Get("q")), http.StatusOK)
}

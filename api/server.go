// Package api serves the listing store over a read-only HTTP interface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"rental-scraper/models"
	"rental-scraper/storage"
	"rental-scraper/utils"
)

const defaultLimit = 100

type Handler struct {
	store  storage.ListingStore
	logger *utils.Logger
}

func NewHandler(store storage.ListingStore, logger *utils.Logger) *Handler {
	return &Handler{store: store, logger: logger.With("api")}
}

// Router returns the routes:
//
//	GET /listings?price_min&price_max&surface_min&rooms_min&source&score_min&apartments_only&limit
//	GET /stats
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/listings", h.handleListings).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleListings(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if f.Limit == 0 {
		f.Limit = defaultLimit
	}

	out := make([]listingJSON, 0)
	for l, err := range h.store.Query(r.Context(), f) {
		if err != nil {
			h.logger.Error("Query failed: %v", err)
			writeError(w, http.StatusInternalServerError, errors.New("query failed"))
			return
		}
		out = append(out, toJSON(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "listings": out})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("Stats failed: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("stats failed"))
		return
	}
	resp := map[string]any{
		"total":      st.Total,
		"by_source":  st.BySource,
		"geocoded":   st.Geocoded,
		"with_score": st.WithScore,
	}
	if !st.Oldest.IsZero() {
		resp["oldest_seen"] = st.Oldest.Format(time.RFC3339)
		resp["newest_seen"] = st.Newest.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ParseFilter reads query predicates from URL parameters.
func ParseFilter(q url.Values) (models.Filter, error) {
	var f models.Filter
	var err error
	if f.PriceMin, err = floatParam(q, "price_min"); err != nil {
		return f, err
	}
	if f.PriceMax, err = floatParam(q, "price_max"); err != nil {
		return f, err
	}
	if f.SurfaceMin, err = floatParam(q, "surface_min"); err != nil {
		return f, err
	}
	if f.ScoreMin, err = floatParam(q, "score_min"); err != nil {
		return f, err
	}
	if v := q.Get("rooms_min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("%w: rooms_min %q", models.ErrInvalidFilter, v)
		}
		f.RoomsMin = &n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("%w: limit %q", models.ErrInvalidFilter, v)
		}
		f.Limit = n
	}
	f.Source = strings.ToLower(strings.TrimSpace(q.Get("source")))
	if v := q.Get("apartments_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: apartments_only %q", models.ErrInvalidFilter, v)
		}
		f.ApartmentsOnly = b
	}
	return f, f.Validate()
}

func floatParam(q url.Values, key string) (*float64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q", models.ErrInvalidFilter, key, v)
	}
	return &f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// CacheHandler exposes hot-cache administration.
type CacheHandler struct {
	service ports.URLService
}

func NewCacheHandler(service ports.URLService) *CacheHandler {
	return &CacheHandler{service: service}
}

func (h *CacheHandler) Hot(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hot, err := h.service.HotURLs(r.Context(), n)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Hot URLs retrieved successfully", map[string]any{
		"hot_urls": hot,
		"count":    len(hot),
	})
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CacheStats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Cache stats retrieved successfully", stats)
}

func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCache(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Cache cleared successfully", nil)
}

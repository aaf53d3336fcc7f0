package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

const (
	cachePermanent = "public, max-age=31536000"
	cacheTemporary = "no-cache, no-store, must-revalidate"
)

type ResolveHandler struct {
	resolver ports.Resolver
}

func NewResolveHandler(resolver ports.Resolver) *ResolveHandler {
	return &ResolveHandler{resolver: resolver}
}

func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}

// Redirect answers GET /{namespace}/{shortcode} with a 301 or 302.
func (h *ResolveHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	code := chi.URLParam(r, "shortcode")

	info, err := h.resolver.Resolve(r.Context(), ns, code, clientMeta(r))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Short URL not found", "status": string(domain.ResolveNotFound)})
		return
	case errors.Is(err, domain.ErrExpired):
		writeJSON(w, http.StatusGone, map[string]string{"error": "Short URL has expired", "status": string(domain.ResolveExpired)})
		return
	case errors.Is(err, domain.ErrInactive):
		writeJSON(w, http.StatusGone, map[string]string{"error": "Short URL is inactive", "status": string(domain.ResolveInactive)})
		return
	default:
		respondError(w, r, err)
		return
	}

	w.Header().Set("X-Short-URL", ns+"/"+code)
	w.Header().Set("X-Click-Timestamp", info.ClickedAt.UTC().Format(time.RFC3339))

	status := http.StatusFound
	if info.RedirectType == domain.RedirectPermanent {
		status = http.StatusMovedPermanently
		w.Header().Set("Cache-Control", cachePermanent)
	} else {
		w.Header().Set("Cache-Control", cacheTemporary)
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
	}
	http.Redirect(w, r, info.URL, status)
}

// Resolve answers GET /api/resolve/{namespace}/{shortcode}. It is always 200;
// failures are described in the body.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	code := chi.URLParam(r, "shortcode")

	info, err := h.resolver.Resolve(r.Context(), ns, code, clientMeta(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"long_url": info.URL})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusOK, map[string]string{"error": "Short URL not found", "status": string(domain.ResolveNotFound)})
	case errors.Is(err, domain.ErrExpired):
		writeJSON(w, http.StatusOK, map[string]string{"error": "Short URL has expired", "status": string(domain.ResolveExpired)})
	case errors.Is(err, domain.ErrInactive):
		writeJSON(w, http.StatusOK, map[string]string{"error": "Short URL is inactive", "status": string(domain.ResolveInactive)})
	default:
		logging.Err(err).Str("namespace", ns).Str("shortcode", code).Msg("resolve failed")
		writeJSON(w, http.StatusOK, map[string]string{"error": "Failed to resolve short URL", "status": "error"})
	}
}

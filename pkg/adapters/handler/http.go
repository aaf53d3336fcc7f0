package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// URLHandler serves the short-URL management routes of one organization namespace.
type URLHandler struct {
	service    ports.URLService
	namespaces ports.NamespaceService
}

func NewURLHandler(service ports.URLService, namespaces ports.NamespaceService) *URLHandler {
	return &URLHandler{service: service, namespaces: namespaces}
}

// CreateURLRequest payload
type CreateURLRequest struct {
	OriginalURL      string     `json:"original_url" validate:"required,url,max=2048"`
	Shortcode        string     `json:"shortcode,omitempty" validate:"omitempty,min=3,max=50"`
	Length           int        `json:"length,omitempty" validate:"omitempty,min=3,max=50"`
	GenerationMethod string     `json:"generation_method,omitempty" validate:"omitempty,oneof=random sequential memorable url_based"`
	IsPrivate        bool       `json:"is_private"`
	Expiry           *time.Time `json:"expiry,omitempty"`
	Tags             []string   `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	RedirectType     string     `json:"redirect_type,omitempty" validate:"omitempty,oneof=permanent temporary"`
}

// UpdateURLRequest payload. Absent fields are left untouched; "expiry": null
// is expressed with clear_expiry.
type UpdateURLRequest struct {
	OriginalURL  *string    `json:"original_url,omitempty" validate:"omitempty,url,max=2048"`
	IsPrivate    *bool      `json:"is_private,omitempty"`
	IsActive     *bool      `json:"is_active,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	ClearExpiry  bool       `json:"clear_expiry,omitempty"`
	Tags         []string   `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	RedirectType *string    `json:"redirect_type,omitempty" validate:"omitempty,oneof=permanent temporary"`
}

// BulkCreateRequest payload
type BulkCreateRequest struct {
	URLs []CreateURLRequest `json:"urls" validate:"required,min=1,max=100,dive"`
}

func (req CreateURLRequest) params(ns *domain.Namespace, userID string) domain.CreateURLParams {
	return domain.CreateURLParams{
		NamespaceID:   ns.ID,
		NamespaceName: ns.Name,
		OriginalURL:   req.OriginalURL,
		CustomCode:    req.Shortcode,
		Length:        req.Length,
		Method:        domain.GenerationMethod(req.GenerationMethod),
		UserID:        userID,
		IsPrivate:     req.IsPrivate,
		Expiry:        req.Expiry,
		Tags:          req.Tags,
		RedirectType:  domain.RedirectType(req.RedirectType),
	}
}

// namespace resolves the {namespace} route parameter inside {org_id}.
func (h *URLHandler) namespace(r *http.Request) (*domain.Namespace, error) {
	return h.namespaces.InOrganization(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "namespace"))
}

func userID(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		return c.UserID
	}
	return ""
}

// Create Short URL
func (h *URLHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateURLRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	u, err := h.service.Create(r.Context(), req.params(ns, userID(r)))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "URL created successfully", u)
}

// BulkCreate creates up to 100 URLs; each item reports its own outcome.
func (h *URLHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var req BulkCreateRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	uid := userID(r)
	items := make([]domain.CreateURLParams, len(req.URLs))
	for i, item := range req.URLs {
		items[i] = item.params(ns, uid)
	}
	results, err := h.service.BatchCreate(r.Context(), items)
	if err != nil {
		respondError(w, r, err)
		return
	}

	created := 0
	for _, res := range results {
		if res.Error == "" {
			created++
		}
	}
	respond(w, http.StatusCreated, "Bulk create completed", map[string]any{
		"results": results,
		"created": created,
		"failed":  len(results) - created,
	})
}

// List URLs of a namespace
func (h *URLHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 10
	}

	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	urls, total, err := h.service.List(r.Context(), ns.ID, page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "URLs retrieved successfully", map[string]any{
		"urls":  urls,
		"count": len(urls),
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// Get a Short URL
func (h *URLHandler) Get(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	u, err := h.service.Get(r.Context(), ns.ID, chi.URLParam(r, "shortcode"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "URL retrieved successfully", u)
}

// Update a Short URL
func (h *URLHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateURLRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	p := domain.UpdateURLParams{
		OriginalURL: req.OriginalURL,
		IsPrivate:   req.IsPrivate,
		IsActive:    req.IsActive,
		Expiry:      req.Expiry,
		ClearExpiry: req.ClearExpiry,
		Tags:        req.Tags,
	}
	if req.RedirectType != nil {
		rt := domain.RedirectType(*req.RedirectType)
		p.RedirectType = &rt
	}

	u, err := h.service.Update(r.Context(), ns.ID, chi.URLParam(r, "shortcode"), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "URL updated successfully", u)
}

// Delete a Short URL
func (h *URLHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), ns.ID, chi.URLParam(r, "shortcode")); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "URL deleted successfully", nil)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

type NamespaceHandler struct {
	service ports.NamespaceService
}

func NewNamespaceHandler(service ports.NamespaceService) *NamespaceHandler {
	return &NamespaceHandler{service: service}
}

type namespaceRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

func (h *NamespaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ns, err := h.service.Create(r.Context(), chi.URLParam(r, "org_id"), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Namespace created successfully", ns)
}

func (h *NamespaceHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ByOrganization(r.Context(), chi.URLParam(r, "org_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Namespaces retrieved successfully", map[string]any{
		"namespaces": list,
		"count":      len(list),
	})
}

// Rename changes the namespace name. Existing URLs keep resolving under the
// new name once the row migration and cache invalidation have run.
func (h *NamespaceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ns, err := h.service.Rename(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "namespace"), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Namespace renamed successfully", ns)
}

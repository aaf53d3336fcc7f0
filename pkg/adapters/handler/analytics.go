package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

type AnalyticsHandler struct {
	service    ports.AnalyticsService
	namespaces ports.NamespaceService
}

func NewAnalyticsHandler(service ports.AnalyticsService, namespaces ports.NamespaceService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, namespaces: namespaces}
}

// window reads ?days= and ?time_filter=. A named filter wins over days.
func window(r *http.Request) (int, string, error) {
	q := r.URL.Query()
	days := 0
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, "", domain.NewValidationError("days", "must be a positive integer")
		}
		days = n
	}
	return days, q.Get("time_filter"), nil
}

func (h *AnalyticsHandler) namespace(r *http.Request) (*domain.Namespace, error) {
	return h.namespaces.InOrganization(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "namespace"))
}

func (h *AnalyticsHandler) URL(w http.ResponseWriter, r *http.Request) {
	days, filter, err := window(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := h.service.URLReport(r.Context(), ns.ID, chi.URLParam(r, "shortcode"), days, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Analytics retrieved successfully", report)
}

func (h *AnalyticsHandler) Namespace(w http.ResponseWriter, r *http.Request) {
	days, filter, err := window(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := h.service.NamespaceReport(r.Context(), ns.ID, days, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Namespace analytics retrieved successfully", report)
}

func (h *AnalyticsHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := h.service.RealtimeReport(r.Context(), ns.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Real-time stats retrieved successfully", report)
}

// organizationNamespaces lists the namespace ids of {org_id}.
func (h *AnalyticsHandler) organizationNamespaces(r *http.Request) ([]string, error) {
	list, err := h.namespaces.ByOrganization(r.Context(), chi.URLParam(r, "org_id"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i, ns := range list {
		ids[i] = ns.ID
	}
	return ids, nil
}

func (h *AnalyticsHandler) Countries(w http.ResponseWriter, r *http.Request) {
	days, filter, err := window(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ids, err := h.organizationNamespaces(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := h.service.TierReport(r.Context(), ids, days, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg := "Country analytics retrieved successfully"
	if len(ids) == 0 {
		msg = "No analytics data available"
	}
	respond(w, http.StatusOK, msg, report)
}

func (h *AnalyticsHandler) Tiers(w http.ResponseWriter, r *http.Request) {
	days, filter, err := window(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ids, err := h.organizationNamespaces(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	breakdown, err := h.service.TierBreakdown(r.Context(), ids, days, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg := "Tier analytics retrieved successfully"
	if len(ids) == 0 {
		msg = "No analytics data available"
	}
	respond(w, http.StatusOK, msg, breakdown)
}

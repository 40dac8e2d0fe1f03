package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"caregiver-hub/internal/model"
	"caregiver-hub/internal/service"
	"caregiver-hub/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseOptionalTime(query.Get("from"), "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseOptionalTime(query.Get("to"), "to")
	if err != nil {
		writeError(w, err)
		return
	}

	items, meta, err := h.service.Query(r.Context(), model.AuditQuery{
		Type:    strings.TrimSpace(query.Get("type")),
		ActorID: strings.TrimSpace(query.Get("actor_id")),
		From:    from,
		To:      to,
		Page:    parseIntOrDefault(query.Get("page"), 1),
		Limit:   parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, items, &meta)
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func parseOptionalTime(raw string, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apierror.New("BAD_REQUEST", field+" must be an RFC 3339 timestamp", raw, http.StatusBadRequest)
	}
	return &parsed, nil
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/observability"
)

const maxAuditPageSize = 500

func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := s.recorder.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("audit search failed")
		httputil.WriteInternalError(w, errors.New("failed to search audit trail"))
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"entries": entries})
}

func auditFilterFromQuery(r *http.Request) (audit.SearchFilter, error) {
	var filter audit.SearchFilter

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("start must be RFC3339")
		}
		filter.StartTime = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("end must be RFC3339")
		}
		filter.EndTime = &t
	}

	filter.PerformedBy = r.URL.Query().Get("performed_by")
	for _, a := range r.URL.Query()["action"] {
		filter.Actions = append(filter.Actions, audit.Action(a))
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := audit.Status(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("severity"); raw != "" {
		severity := audit.Severity(raw)
		filter.Severity = &severity
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		return filter, err
	}
	if limit < 1 || limit > maxAuditPageSize {
		limit = 50
	}
	filter.Limit = limit

	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		return filter, err
	}
	if offset < 0 {
		offset = 0
	}
	filter.Offset = offset

	return filter, nil
}

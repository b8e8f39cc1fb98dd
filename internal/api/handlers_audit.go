// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/montfort/incidentguard/internal/audit"
	"github.com/montfort/incidentguard/internal/logging"
)

// ListAudit handles GET /api/v1/audit. It exposes the audit trail with
// filtering by action code, related entity, actor, and time range.
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.QueryFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	if codes := q["action_code"]; len(codes) > 0 {
		filter.ActionCodes = codes
	}
	if v := q.Get("related_table"); v != "" {
		filter.RelatedTable = v
	}
	if v := q.Get("related_entity_id"); v != "" {
		if id := queryInt(r, "related_entity_id", 0); id > 0 {
			id32 := int32(id)
			filter.RelatedEntityID = &id32
		}
	}
	if v := q.Get("actor_id"); v != "" {
		actorID, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "INVALID_ACTOR_ID", "actor_id must be a UUID", nil)
			return
		}
		filter.ActorID = &actorID
	}
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "INVALID_TIME", "start must be RFC3339", nil)
			return
		}
		filter.Start = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "INVALID_TIME", "end must be RFC3339", nil)
			return
		}
		filter.End = &t
	}

	records, err := h.auditLog.Query(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to fetch audit records", err)
		return
	}

	count, err := h.auditLog.Count(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("failed to count audit records")
		count = int64(len(records))
	}

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   count,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

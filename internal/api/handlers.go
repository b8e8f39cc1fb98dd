// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package api

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/montfort/incidentguard/internal/audit"
	"github.com/montfort/incidentguard/internal/logging"
	"github.com/montfort/incidentguard/internal/models"
	"github.com/montfort/incidentguard/internal/sanitize"
	"github.com/montfort/incidentguard/internal/session"
	"github.com/montfort/incidentguard/internal/store"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	store    *store.Store
	reports  *store.ReportStore
	users    *store.UserStore
	auditLog *audit.DuckDBStore
	engine   *sanitize.Engine
	sessions *session.Middleware
	security *logging.SecurityLogger

	// allowedRedirectHost is the only absolute-URL host accepted for
	// report source URLs.
	allowedRedirectHost string
}

// NewHandlers creates the handler set.
func NewHandlers(
	st *store.Store,
	reports *store.ReportStore,
	users *store.UserStore,
	auditLog *audit.DuckDBStore,
	engine *sanitize.Engine,
	sessions *session.Middleware,
	security *logging.SecurityLogger,
	allowedRedirectHost string,
) *Handlers {
	return &Handlers{
		store:               st,
		reports:             reports,
		users:               users,
		auditLog:            auditLog,
		engine:              engine,
		sessions:            sessions,
		security:            security,
		allowedRedirectHost: allowedRedirectHost,
	}
}

// clientAddress returns the caller's IP without the port. RealIP middleware
// has already resolved forwarding headers into RemoteAddr.
func clientAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// commitInfo builds the commit attribution from the authenticated session
// and the request.
func commitInfo(r *http.Request) store.CommitInfo {
	info := store.CommitInfo{ClientAddress: clientAddress(r)}
	if sess := session.FromContext(r.Context()); sess != nil {
		if id, err := uuid.Parse(sess.UserID); err == nil {
			info.ActorID = &id
		}
	}
	return info
}

// Health handles GET /api/v1/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, "UNHEALTHY", "Database unavailable", err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

type loginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,min=1,max=200"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			h.security.LogEvent(&logging.SecurityEvent{
				Event:     "login_failed",
				Username:  req.Username,
				IPAddress: clientAddress(r),
			})
			respondError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "LOGIN_ERROR", "Login failed", err)
		return
	}

	sess, err := h.sessions.CreateSession(r.Context(), w, r, user.ID.String(), user.Username)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "SESSION_ERROR", "Failed to create session", err)
		return
	}

	h.security.LogEvent(&logging.SecurityEvent{
		Event:     "login_succeeded",
		Success:   true,
		UserID:    user.ID.String(),
		Username:  user.Username,
		SessionID: sess.ID,
		IPAddress: clientAddress(r),
	})
	respondJSON(w, r, http.StatusOK, map[string]string{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "signed out"})
		return
	}

	if err := h.sessions.DestroySession(r.Context(), w, sess.ID); err != nil {
		respondError(w, r, http.StatusInternalServerError, "SESSION_ERROR", "Failed to destroy session", err)
		return
	}
	h.security.LogSessionRevoked(sess.UserID, sess.ID, clientAddress(r), "logout")
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "signed out"})
}

type reportRequest struct {
	Title          string `json:"title" validate:"required,min=3,max=200"`
	Description    string `json:"description" validate:"required,max=10000"`
	Severity       string `json:"severity" validate:"required,oneof=low medium high critical"`
	Status         string `json:"status" validate:"omitempty,oneof=open resolved closed"`
	AttachmentName string `json:"attachment_name" validate:"omitempty,max=300"`
	SourceURL      string `json:"source_url" validate:"omitempty,max=2000"`
	ReporterEmail  string `json:"reporter_email" validate:"omitempty,email"`
}

// sanitizeReport applies the sanitization pipeline to every free-text
// field. A pattern timeout rejects the request rather than letting the
// value through unsanitized.
func (h *Handlers) sanitizeReport(r *http.Request, req *reportRequest) *APIError {
	req.Title = h.engine.Truncate(h.engine.Plain(req.Title), 200)

	desc, err := h.engine.Markup(req.Description)
	if err != nil {
		h.security.LogSanitizationRejected(clientAddress(r), "description", err.Error())
		return &APIError{Code: "SANITIZATION_REJECTED", Message: "Description could not be sanitized"}
	}
	req.Description = desc

	req.AttachmentName = h.engine.FileName(req.AttachmentName)
	if req.AttachmentName == sanitize.PlaceholderFileName {
		req.AttachmentName = ""
	}

	if req.SourceURL != "" {
		cleaned := h.engine.URL(req.SourceURL, h.allowedRedirectHost)
		if cleaned == "" {
			h.security.LogSanitizationRejected(clientAddress(r), "source_url", "disallowed url")
			return &APIError{Code: "SANITIZATION_REJECTED", Message: "Source URL is not allowed"}
		}
		req.SourceURL = cleaned
	}

	req.ReporterEmail = h.engine.Email(req.ReporterEmail)
	return nil
}

// CreateReport handles POST /api/v1/reports.
func (h *Handlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := h.sanitizeReport(r, &req); apiErr != nil {
		respondError(w, r, http.StatusUnprocessableEntity, apiErr.Code, apiErr.Message, nil)
		return
	}

	id, err := h.reports.NextID(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to create report", err)
		return
	}

	rep := &models.Report{
		ID:             id,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       req.Severity,
		Status:         models.ReportStatusOpen,
		AttachmentName: req.AttachmentName,
		SourceURL:      req.SourceURL,
		ReporterEmail:  req.ReporterEmail,
	}
	if sess := session.FromContext(r.Context()); sess != nil {
		if uid, parseErr := uuid.Parse(sess.UserID); parseErr == nil {
			rep.CreatedBy = &uid
		}
	}

	uow := h.store.NewUnitOfWork()
	uow.StageCreate(rep)
	if err := uow.Commit(r.Context(), commitInfo(r)); err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to create report", err)
		return
	}

	created, err := h.reports.Get(r.Context(), rep.ID)
	if err != nil {
		// The commit succeeded; respond with the staged entity.
		created = rep
	}
	respondJSON(w, r, http.StatusCreated, created)
}

// reportID parses the {id} route parameter.
func reportID(r *http.Request) (int32, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id < 1 {
		return 0, errors.New("invalid report id")
	}
	return int32(id), nil
}

// GetReport handles GET /api/v1/reports/{id}.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", "Report ID must be a positive integer", nil)
		return
	}

	rep, err := h.reports.Get(r.Context(), id)
	if errors.Is(err, store.ErrReportNotFound) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to fetch report", err)
		return
	}
	respondJSON(w, r, http.StatusOK, rep)
}

// ListReports handles GET /api/v1/reports.
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	reports, err := h.reports.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to list reports", err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"limit":   limit,
		"offset":  offset,
	})
}

// UpdateReport handles PUT /api/v1/reports/{id}.
func (h *Handlers) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", "Report ID must be a positive integer", nil)
		return
	}

	existing, err := h.reports.Get(r.Context(), id)
	if errors.Is(err, store.ErrReportNotFound) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to fetch report", err)
		return
	}

	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := h.sanitizeReport(r, &req); apiErr != nil {
		respondError(w, r, http.StatusUnprocessableEntity, apiErr.Code, apiErr.Message, nil)
		return
	}

	status := req.Status
	if status == "" {
		status = existing.Status
	}

	updated := &models.Report{
		ID:             existing.ID,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       req.Severity,
		Status:         status,
		AttachmentName: req.AttachmentName,
		SourceURL:      req.SourceURL,
		ReporterEmail:  req.ReporterEmail,
		CreatedBy:      existing.CreatedBy,
		CreatedAt:      existing.CreatedAt,
	}

	fields := changedFields(existing, updated)
	if len(fields) == 0 {
		respondJSON(w, r, http.StatusOK, existing)
		return
	}

	uow := h.store.NewUnitOfWork()
	uow.StageUpdate(updated, fields)
	if err := uow.Commit(r.Context(), commitInfo(r)); err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to update report", err)
		return
	}

	fresh, err := h.reports.Get(r.Context(), id)
	if err != nil {
		fresh = updated
	}
	respondJSON(w, r, http.StatusOK, fresh)
}

// changedFields diffs the mutable report fields for the change pipeline.
func changedFields(oldRep, newRep *models.Report) map[string]store.FieldChange {
	fields := make(map[string]store.FieldChange)
	diff := func(name, oldVal, newVal string) {
		if oldVal != newVal {
			fields[name] = store.FieldChange{Old: oldVal, New: newVal}
		}
	}
	diff("title", oldRep.Title, newRep.Title)
	diff("description", oldRep.Description, newRep.Description)
	diff("severity", oldRep.Severity, newRep.Severity)
	diff("status", oldRep.Status, newRep.Status)
	diff("attachment_name", oldRep.AttachmentName, newRep.AttachmentName)
	diff("source_url", oldRep.SourceURL, newRep.SourceURL)
	diff("reporter_email", oldRep.ReporterEmail, newRep.ReporterEmail)
	return fields
}

// DeleteReport handles DELETE /api/v1/reports/{id}.
func (h *Handlers) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", "Report ID must be a positive integer", nil)
		return
	}

	existing, err := h.reports.Get(r.Context(), id)
	if errors.Is(err, store.ErrReportNotFound) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to fetch report", err)
		return
	}

	uow := h.store.NewUnitOfWork()
	uow.StageDelete(existing)
	if err := uow.Commit(r.Context(), commitInfo(r)); err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to delete report", err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"deleted": id})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

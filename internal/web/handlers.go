// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package web

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/chms/chms/internal/account"
	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/observability"
	"github.com/chms/chms/pkg/errutil"
)

const maxBodyBytes = 64 << 10

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Role      auth.Role `json:"role"`
	Redirect  string    `json:"redirect"`
	ExpiresAt time.Time `json:"expires_at"`
}

type identityView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Phone     string     `json:"phone,omitempty"`
	Role      auth.Role  `json:"role"`
	Active    bool       `json:"active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func newIdentityView(i *auth.Identity) identityView {
	return identityView{
		ID:        i.ID.String(),
		Email:     i.Email,
		FullName:  i.FullName,
		Phone:     i.Phone,
		Role:      i.Role,
		Active:    i.Active,
		LastLogin: i.LastLogin,
		CreatedAt: i.CreatedAt,
	}
}

type auditView struct {
	ID           string    `json:"id"`
	ActorID      string    `json:"actor_id,omitempty"`
	Action       string    `json:"action"`
	SubjectTable string    `json:"subject_table,omitempty"`
	SubjectID    string    `json:"subject_id,omitempty"`
	BeforeValue  string    `json:"before_value,omitempty"`
	AfterValue   string    `json:"after_value,omitempty"`
	SourceIP     string    `json:"source_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newAuditView(e auth.AuditEvent) auditView {
	v := auditView{
		ID:           e.ID.String(),
		Action:       e.Action,
		SubjectTable: e.SubjectTable,
		SubjectID:    e.SubjectID,
		BeforeValue:  e.BeforeValue,
		AfterValue:   e.AfterValue,
		SourceIP:     e.SourceIP,
		UserAgent:    e.UserAgent,
		CreatedAt:    e.CreatedAt,
	}
	if e.ActorID != nil {
		v.ActorID = e.ActorID.String()
	}
	return v
}

// decodeBody fills dst from a JSON body, or calls fromForm with the parsed
// form for any other content type.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, fromForm func(url.Values)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return invalidInput("body", "malformed request body")
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return invalidInput("body", "malformed form body")
	}
	fromForm(r.PostForm)
	return nil
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if h.limiter != nil && !h.limiter.Allow(client.IP) {
		h.metrics.RecordLogin(observability.OutcomeRateLimited)
		h.logger.Warn("login rate limited", "source_ip", client.IP)
		w.Header().Set("Retry-After", strconv.Itoa(h.limiter.RetryAfter()))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:   "rate_limited",
			Message: "too many login attempts, try again later",
		})
		return
	}

	var req loginRequest
	err := decodeBody(w, r, &req, func(form url.Values) {
		req.Email = form.Get("email")
		req.Password = form.Get("password")
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	session, token, err := h.authn.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin(loginOutcome(err))
		writeError(w, r, h.logger, err)
		return
	}

	h.metrics.RecordLogin(observability.OutcomeSuccess)
	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, loginResponse{
		Role:      session.Role,
		Redirect:  dashboardFor(session.Role),
		ExpiresAt: session.ExpiresAt,
	})
}

func loginOutcome(err error) string {
	switch errutil.Code(err) {
	case auth.CodeInvalidCredentials:
		return observability.OutcomeRejected
	case auth.CodeDependencyUnavailable:
		return observability.OutcomeUnavailable
	default:
		return observability.OutcomeError
	}
}

// logout always succeeds for the client; a store failure only leaves a
// session behind to expire on its own.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authn.Logout(r.Context(), tokenFromRequest(r)); err != nil {
		errutil.LogBestEffort(h.logger, "logout", err)
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"redirect": LoginPath})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	err := decodeBody(w, r, &req, func(form url.Values) {
		req.FullName = form.Get("full_name")
		req.Email = form.Get("email")
		req.Phone = form.Get("phone")
		req.Password = form.Get("password")
		req.ConfirmPassword = form.Get("confirm_password")
		req.Role = form.Get("role")
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	identity, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       identity.ID.String(),
		"email":    identity.Email,
		"role":     identity.Role,
		"redirect": LoginPath,
	})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"identity_id": session.IdentityID.String(),
		"email":       session.Email,
		"role":        session.Role,
		"dashboard":   dashboardFor(session.Role),
		"expires_at":  session.ExpiresAt,
	})
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"role":  session.Role,
		"email": session.Email,
	})
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	var role *auth.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := auth.ParseRole(raw)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		role = &parsed
	}

	identities, err := h.accounts.ListIdentities(r.Context(), role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	views := make([]identityView, 0, len(identities))
	for _, i := range identities {
		views = append(views, newIdentityView(i))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views})
}

func (h *handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	id, err := ulid.ParseStrict(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, invalidInput("id", "invalid identity id"))
		return
	}
	if err := h.accounts.Deactivate(r.Context(), session, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id.String(), "active": false})
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	events, err := h.accounts.ListAudit(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	views := make([]auditView, 0, len(events))
	for _, e := range events {
		views = append(views, newAuditView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func auditFilterFromQuery(q url.Values) (auth.AuditFilter, error) {
	filter := auth.AuditFilter{Action: strings.ToUpper(strings.TrimSpace(q.Get("action")))}

	if raw := q.Get("actor"); raw != "" {
		id, err := ulid.ParseStrict(raw)
		if err != nil {
			return filter, invalidInput("actor", "invalid actor id")
		}
		filter.ActorID = &id
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, invalidInput(p.name, p.name+" must be a non-negative integer")
		}
		*p.dst = n
	}
	return filter, nil
}

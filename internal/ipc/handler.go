// Package ipc provides the HTTP API for the spine orchestrator.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/audit"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/orchestrator"
)

// RunLister reads the request history. *store.RunStore satisfies it.
type RunLister interface {
	ListRuns(ctx context.Context, tenantID string, limit int) ([]domain.RunRecord, error)
}

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
	Audit        *audit.Chain
	Runs         RunLister
	Auth         *Authenticator
	Logger       *zap.Logger
}

// HandleRequest is the body for POST /api/v1/handle.
type HandleRequest struct {
	Text         string `json:"text"`
	ConfirmToken string `json:"confirm_token,omitempty"`
}

// DetectRequest is the body for POST /api/v1/detect.
type DetectRequest struct {
	Text string `json:"text"`
}

// DetectResponse lists the ranked candidates.
type DetectResponse struct {
	Intents []domain.Intent `json:"intents"`
}

// VerifyResponse is the response for GET /api/v1/audit/verify.
type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	Events   int    `json:"events"`
	BrokenAt int    `json:"broken_at"`
	Reason   string `json:"reason,omitempty"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handle handles POST /api/v1/handle.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req HandleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "text is required"})
		return
	}

	res, err := h.Orchestrator.Handle(r.Context(), req.Text, actor, req.ConfirmToken)
	if err != nil {
		h.logger().Error("handle failed", zap.String("tenant", actor.TenantID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Detect handles POST /api/v1/detect.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}

	intents, err := h.Orchestrator.Detect(req.Text, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if intents == nil {
		intents = []domain.Intent{}
	}
	writeJSON(w, http.StatusOK, DetectResponse{Intents: intents})
}

// ListAudit handles GET /api/v1/audit. Owner and admin only.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.auditor(w, r)
	if !ok {
		return
	}
	events, err := h.Audit.List(r.Context(), actor.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// VerifyAudit handles GET /api/v1/audit/verify. Owner and admin only.
func (h *Handler) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.auditor(w, r)
	if !ok {
		return
	}
	events, err := h.Audit.List(r.Context(), actor.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	idx, err := audit.Verify(actor.TenantID, events)
	resp := VerifyResponse{Valid: err == nil, Events: len(events), BrokenAt: idx}
	if err != nil {
		resp.Reason = err.Error()
		h.logger().Warn("audit chain broken",
			zap.String("tenant", actor.TenantID),
			zap.Int("broken_at", idx),
			zap.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRuns handles GET /api/v1/runs?limit=N.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err == nil {
			limit = parsed
		}
	}

	runs := []domain.RunRecord{}
	if h.Runs != nil {
		got, err := h.Runs.ListRuns(r.Context(), actor.TenantID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if got != nil {
			runs = got
		}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.ActorContext, bool) {
	actor, err := h.Auth.Actor(r)
	if err != nil {
		writeError(w, err)
		return domain.ActorContext{}, false
	}
	return actor, true
}

func (h *Handler) auditor(w http.ResponseWriter, r *http.Request) (domain.ActorContext, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return actor, false
	}
	if actor.Role != domain.RoleOwner && actor.Role != domain.RoleAdmin {
		writeError(w, domain.NewEngineError(domain.ErrPolicyDenied.Code, "audit log is restricted to owner or admin"))
		return actor, false
	}
	return actor, true
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrInvalidActor.Code:
			status = http.StatusUnauthorized
		case domain.ErrPolicyDenied.Code:
			status = http.StatusForbidden
		case domain.ErrNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrRateLimited.Code:
			status = http.StatusTooManyRequests
		case domain.ErrChainIntegrity.Code, domain.ErrChainBroken.Code:
			status = http.StatusConflict
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/services"
)

// ReputationView is a reputation document plus the values the console derives from it.
type ReputationView struct {
	models.UserReputation
	EffectivelyBanned  bool                    `json:"effectivelyBanned"`
	IsPermanentBan     bool                    `json:"isPermanentBan"`
	ActiveRestrictions []models.RestrictionKey `json:"activeRestrictions"`
}

type ModerationHandler struct {
	actions *services.ModerationActions
}

func NewModerationHandler(actions *services.ModerationActions) *ModerationHandler {
	return &ModerationHandler{actions: actions}
}

func (h *ModerationHandler) view(rep models.UserReputation) ReputationView {
	return ReputationView{
		UserReputation:     rep,
		EffectivelyBanned:  rep.EffectivelyBanned(),
		IsPermanentBan:     rep.IsPermanentBan(h.actions.Reputation.Now()),
		ActiveRestrictions: rep.ActiveRestrictions(),
	}
}

func (h *ModerationHandler) GetReputation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.actions.Admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "get reputation", err, "Failed to load reputation")
		return
	}

	rep, err := h.actions.Reputation.Get(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, "get reputation", err, "Failed to load reputation")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(h.view(rep)))
}

func (h *ModerationHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", services.DefaultHistoryLimit)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid limit"))
		return
	}
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.actions.Admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "list history", err, "Failed to load history")
		return
	}

	history, err := h.actions.Audit.ListForUser(ctx, chi.URLParam(r, "userId"), limit)
	if err != nil {
		writeError(w, "list history", err, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(history))
}

func (h *ModerationHandler) ListAdminActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", services.DefaultHistoryLimit)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid limit"))
		return
	}
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.actions.Admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "list admin activity", err, "Failed to load activity")
		return
	}

	actions, err := h.actions.Audit.ListByAdmin(ctx, chi.URLParam(r, "adminId"), limit)
	if err != nil {
		writeError(w, "list admin activity", err, "Failed to load activity")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(actions))
}

func (h *ModerationHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", services.DefaultHistoryLimit)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid limit"))
		return
	}
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.actions.Admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "list notes", err, "Failed to load notes")
		return
	}

	notes, err := h.actions.Audit.ListNotes(ctx, chi.URLParam(r, "userId"), limit)
	if err != nil {
		writeError(w, "list notes", err, "Failed to load notes")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(notes))
}

func (h *ModerationHandler) ListRestricted(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.actions.Admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "list restricted", err, "Failed to list restricted users")
		return
	}

	reps, err := h.actions.Reputation.ListRestricted(ctx)
	if err != nil {
		writeError(w, "list restricted", err, "Failed to list restricted users")
		return
	}
	views := make([]ReputationView, 0, len(reps))
	for _, rep := range reps {
		views = append(views, h.view(rep))
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(views))
}

// TakeAction dispatches one moderation action against the user in the path.
func (h *ModerationHandler) TakeAction(w http.ResponseWriter, r *http.Request) {
	actor := principalFrom(r)
	if actor.UID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req services.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	action, err := req.ToAction(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, "take action", err, "Failed to apply action")
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := h.actions.Dispatch(ctx, actor, action)
	if errors.Is(err, services.ErrAuditIncomplete) {
		zap.S().Warnw("action applied without audit entry", "adminId", actor.UID, "action", req.Type)
		writeJSON(w, http.StatusOK, models.NewWarningResponse(h.outcomeView(out), "Action applied but the audit entry could not be recorded"))
		return
	}
	if err != nil {
		writeError(w, "take action", err, "Failed to apply action")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(h.outcomeView(out)))
}

// OutcomeView renders an Outcome with the derived reputation fields.
type OutcomeView struct {
	Action     models.AdminAction        `json:"action"`
	Reputation *ReputationView           `json:"reputation,omitempty"`
	Note       *models.AdminNote         `json:"note,omitempty"`
	Suspicion  *models.SuspiciousAccount `json:"suspicion,omitempty"`
	Report     *models.Report            `json:"report,omitempty"`
}

func (h *ModerationHandler) outcomeView(out *services.Outcome) OutcomeView {
	v := OutcomeView{Action: out.Action, Note: out.Note, Suspicion: out.Suspicion, Report: out.Report}
	if out.Reputation != nil {
		rv := h.view(*out.Reputation)
		v.Reputation = &rv
	}
	return v
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/services"
)

type ReportHandler struct {
	moderation *ModerationHandler
}

func NewReportHandler(moderation *ModerationHandler) *ReportHandler {
	return &ReportHandler{moderation: moderation}
}

func (h *ReportHandler) authorize(ctx context.Context, w http.ResponseWriter, r *http.Request, op, failMsg string) bool {
	if err := h.moderation.actions.Admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, op, err, failMsg)
		return false
	}
	return true
}

func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid limit"))
		return
	}
	f := services.ReportFilter{UserID: r.URL.Query().Get("userId"), Limit: limit}
	if raw := r.URL.Query().Get("status"); raw != "" && raw != "all" {
		if f.Status, ok = models.ParseReportStatus(raw); !ok {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid status"))
			return
		}
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if !h.authorize(ctx, w, r, "list reports", "Failed to list reports") {
		return
	}

	reports, err := h.moderation.actions.Reports.List(ctx, f)
	if err != nil {
		writeError(w, "list reports", err, "Failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(reports))
}

func (h *ReportHandler) StatusCounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if !h.authorize(ctx, w, r, "report counts", "Failed to count reports") {
		return
	}

	counts, err := h.moderation.actions.Reports.StatusCounts(ctx)
	if err != nil {
		writeError(w, "report counts", err, "Failed to count reports")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(counts))
}

func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if !h.authorize(ctx, w, r, "get report", "Failed to load report") {
		return
	}

	report, err := h.moderation.actions.Reports.Get(ctx, chi.URLParam(r, "reportId"))
	if err != nil {
		writeError(w, "get report", err, "Failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(report))
}

type resolveRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Resolve confirms or denies a report through the audited action path.
func (h *ReportHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor := principalFrom(r)
	if actor.UID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := h.moderation.actions.Dispatch(ctx, actor, services.ResolveReport{
		ReportID: chi.URLParam(r, "reportId"),
		Status:   models.ReportStatus(req.Status),
		Reason:   req.Reason,
	})
	if errors.Is(err, services.ErrAuditIncomplete) {
		zap.S().Warnw("report resolved without audit entry", "adminId", actor.UID, "reportId", chi.URLParam(r, "reportId"))
		writeJSON(w, http.StatusOK, models.NewWarningResponse(h.moderation.outcomeView(out), "Action applied but the audit entry could not be recorded"))
		return
	}
	if err != nil {
		writeError(w, "resolve report", err, "Failed to resolve report")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(h.moderation.outcomeView(out)))
}

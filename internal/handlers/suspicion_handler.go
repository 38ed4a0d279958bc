package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/services"
)

type SuspicionHandler struct {
	admins    *services.AdminDirectory
	suspicion *services.SuspicionService
}

func NewSuspicionHandler(admins *services.AdminDirectory, suspicion *services.SuspicionService) *SuspicionHandler {
	return &SuspicionHandler{admins: admins, suspicion: suspicion}
}

func (h *SuspicionHandler) ListSuspicious(w http.ResponseWriter, r *http.Request) {
	minLevel, ok := queryInt(r, "minLevel", models.MinSuspicionLevel)
	if !ok || minLevel > models.MaxSuspicionLevel {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("minLevel must be between 1 and 5"))
		return
	}
	var status models.SuspicionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status, ok = models.ParseSuspicionStatus(raw); !ok {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid status"))
			return
		}
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "list suspicious", err, "Failed to list suspicious accounts")
		return
	}

	accounts, err := h.suspicion.ListSuspicious(ctx, minLevel, status)
	if err != nil {
		writeError(w, "list suspicious", err, "Failed to list suspicious accounts")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(accounts))
}

func (h *SuspicionHandler) ActionRequired(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "action required", err, "Failed to load review queue")
		return
	}

	accounts, err := h.suspicion.ActionRequired(ctx)
	if err != nil {
		writeError(w, "action required", err, "Failed to load review queue")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(accounts))
}

func (h *SuspicionHandler) GetSuspicious(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "get suspicious", err, "Failed to load suspicious account")
		return
	}

	acct, err := h.suspicion.Get(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, "get suspicious", err, "Failed to load suspicious account")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(acct))
}

func (h *SuspicionHandler) LevelCounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "level counts", err, "Failed to count suspicion levels")
		return
	}

	counts, err := h.suspicion.LevelCounts(ctx)
	if err != nil {
		writeError(w, "level counts", err, "Failed to count suspicion levels")
		return
	}
	out := make(map[string]int, len(counts))
	for lvl, n := range counts {
		out[strconv.Itoa(lvl)] = n
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(out))
}

func (h *SuspicionHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	minAccounts, ok := queryInt(r, "minAccounts", models.SharedDeviceThreshold)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid minAccounts"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "list devices", err, "Failed to list devices")
		return
	}

	devices, err := h.suspicion.ListSharedDevices(ctx, minAccounts)
	if err != nil {
		writeError(w, "list devices", err, "Failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(devices))
}

// Rescore runs one scoring pass on demand. The worker runs the same pass on a schedule.
func (h *SuspicionHandler) Rescore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), 2*requestTimeout)
	defer cancel()
	if err := h.admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "rescore", err, "Failed to score accounts")
		return
	}

	report, err := h.suspicion.Rescore(ctx)
	if err != nil {
		writeError(w, "rescore", err, "Failed to score accounts")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(report))
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/services"
)

type SessionHandler struct {
	admins *services.AdminDirectory
}

func NewSessionHandler(admins *services.AdminDirectory) *SessionHandler {
	return &SessionHandler{admins: admins}
}

// StartSession is called by the console right after sign-in. It bootstraps the profile
// of an allow-listed admin.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	session, err := h.admins.EnsureAdminProfile(ctx, p)
	if err != nil {
		zap.S().Infow("console sign-in refused", "uid", p.UID, "email", p.Email, "error", err)
		writeError(w, "start session", err, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func (h *SessionHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.admins.Authorize(ctx, principalFrom(r)); err != nil {
		writeError(w, "list admins", err, "Failed to list admins")
		return
	}
	admins, err := h.admins.ListAdmins(ctx)
	if err != nil {
		writeError(w, "list admins", err, "Failed to list admins")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(admins))
}

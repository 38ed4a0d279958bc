package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/middleware"
	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/services"
)

const requestTimeout = 10 * time.Second

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func contextWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

func principalFrom(r *http.Request) services.Principal {
	return services.Principal{
		UID:   middleware.GetUserID(r.Context()),
		Email: middleware.GetUserEmail(r.Context()),
	}
}

// writeError maps a service error to a status. failMsg is shown for internal failures.
func writeError(w http.ResponseWriter, op string, err error, failMsg string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(ve.Fields))
	case errors.Is(err, services.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
	case errors.Is(err, services.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Administrator privilege required"))
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found"))
	case errors.Is(err, context.DeadlineExceeded):
		zap.S().Errorw(op+" timed out", "error", err)
		writeJSON(w, http.StatusGatewayTimeout, models.NewErrorResponse(failMsg))
	default:
		zap.S().Errorw(op+" failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(failMsg))
	}
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/muso/admin-backend/internal/services"
)

// API groups the console handlers.
type API struct {
	Session    *SessionHandler
	Moderation *ModerationHandler
	Suspicion  *SuspicionHandler
	Reports    *ReportHandler
}

func NewAPI(actions *services.ModerationActions) *API {
	moderation := NewModerationHandler(actions)
	return &API{
		Session:    NewSessionHandler(actions.Admins),
		Moderation: moderation,
		Suspicion:  NewSuspicionHandler(actions.Admins, actions.Suspicion),
		Reports:    NewReportHandler(moderation),
	}
}

// Mount registers the console routes on r. Callers install authentication first.
func (a *API) Mount(r chi.Router) {
	r.Post("/session", a.Session.StartSession)
	r.Get("/admins", a.Session.ListAdmins)
	r.Get("/admins/{adminId}/actions", a.Moderation.ListAdminActivity)

	r.Get("/restricted", a.Moderation.ListRestricted)

	r.Route("/users/{userId}", func(r chi.Router) {
		r.Get("/reputation", a.Moderation.GetReputation)
		r.Get("/actions", a.Moderation.ListHistory)
		r.Post("/actions", a.Moderation.TakeAction)
		r.Get("/notes", a.Moderation.ListNotes)
	})

	r.Route("/suspicious", func(r chi.Router) {
		r.Get("/", a.Suspicion.ListSuspicious)
		r.Get("/action-required", a.Suspicion.ActionRequired)
		r.Get("/levels", a.Suspicion.LevelCounts)
		r.Post("/rescore", a.Suspicion.Rescore)
		r.Get("/{userId}", a.Suspicion.GetSuspicious)
	})

	r.Get("/devices", a.Suspicion.ListDevices)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", a.Reports.ListReports)
		r.Get("/counts", a.Reports.StatusCounts)
		r.Get("/{reportId}", a.Reports.GetReport)
		r.Post("/{reportId}/resolve", a.Reports.Resolve)
	})
}

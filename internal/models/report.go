package models

import (
	"time"

	"github.com/muso/admin-backend/internal/store"
)

// ReportStatus is the moderation state of a user-submitted report. Documents written
// before moderation existed have no status and read as pending.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportConfirmed ReportStatus = "confirmed"
	ReportDenied    ReportStatus = "denied"
)

var ReportStatuses = []ReportStatus{ReportPending, ReportConfirmed, ReportDenied}

func ParseReportStatus(s string) (ReportStatus, bool) {
	for _, st := range ReportStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsReportDecision reports whether status resolves a report.
func IsReportDecision(status ReportStatus) bool {
	return status == ReportConfirmed || status == ReportDenied
}

// Report is report/{id}, filed by the mobile app about a stop.
type Report struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Status      ReportStatus `json:"status"`
	Description string       `json:"description"`
	StopName    string       `json:"stopName"`
	UserID      string       `json:"userId,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	ResolvedAt  *time.Time   `json:"resolvedAt,omitempty"`
	ResolvedBy  string       `json:"resolvedBy,omitempty"`
	// ValidationCounted is set once the reporter's validatedReports was bumped for it.
	ValidationCounted bool `json:"validationCounted"`
}

// ReportFromDoc decodes a report. Older app builds wrote the reporter as "userID".
func ReportFromDoc(id string, doc store.Doc) Report {
	r := Report{
		ID:                id,
		Type:              store.String(doc, "type"),
		Status:            ReportStatus(store.String(doc, "status")),
		Description:       store.String(doc, "description"),
		StopName:          store.String(doc, "stopName"),
		UserID:            store.String(doc, "userId"),
		ResolvedBy:        store.String(doc, "resolvedBy"),
		ValidationCounted: store.Bool(doc, "validationCounted", false),
	}
	if r.UserID == "" {
		r.UserID = store.String(doc, "userID")
	}
	if _, ok := ParseReportStatus(string(r.Status)); !ok {
		r.Status = ReportPending
	}
	if t, ok := store.Time(doc, "timestamp"); ok {
		r.Timestamp = t
	}
	if t, ok := store.Time(doc, "resolvedAt"); ok {
		r.ResolvedAt = &t
	}
	return r
}

package models

import (
	"fmt"
	"time"

	"github.com/muso/admin-backend/internal/store"
)

type SuspicionStatus string

const (
	StatusPending   SuspicionStatus = "pending"
	StatusReviewed  SuspicionStatus = "reviewed"
	StatusDismissed SuspicionStatus = "dismissed"
)

func ParseSuspicionStatus(s string) (SuspicionStatus, bool) {
	switch SuspicionStatus(s) {
	case StatusPending, StatusReviewed, StatusDismissed:
		return SuspicionStatus(s), true
	}
	return "", false
}

// IsReviewDecision reports whether status is one a moderator can set: reviewed or dismissed.
func IsReviewDecision(status SuspicionStatus) bool {
	return status == StatusReviewed || status == StatusDismissed
}

// ClearedReason marks a record whose account no longer shares a device with anyone.
const ClearedReason = "no longer shares a device with other accounts"

const (
	MinSuspicionLevel = 1
	MaxSuspicionLevel = 5
	// ActionRequiredLevel is where an account moves to the review queue.
	ActionRequiredLevel = 4
	// SharedDeviceThreshold is the account count that makes a device a signal.
	SharedDeviceThreshold = 2
)

// SuspiciousAccount is the advisory record in suspicious_accounts/{userId}.
type SuspiciousAccount struct {
	UserID          string          `json:"userId"`
	SuspicionLevel  int             `json:"suspicionLevel"`
	Reasons         []string        `json:"reasons"`
	RelatedAccounts []string        `json:"relatedAccounts"`
	DeviceID        string          `json:"deviceId"`
	DetectedAt      time.Time       `json:"detectedAt"`
	Status          SuspicionStatus `json:"status"`
}

func (s SuspiciousAccount) ActionRequired() bool {
	return s.SuspicionLevel >= ActionRequiredLevel
}

// Validate reports data-quality problems keyed by field.
func (s *SuspiciousAccount) Validate() map[string]string {
	errors := make(map[string]string)

	if s.UserID == "" {
		errors["userId"] = "User ID is required"
	}
	if s.SuspicionLevel < MinSuspicionLevel || s.SuspicionLevel > MaxSuspicionLevel {
		errors["suspicionLevel"] = fmt.Sprintf("Suspicion level must be between %d and %d", MinSuspicionLevel, MaxSuspicionLevel)
	}
	if s.SuspicionLevel > MinSuspicionLevel && len(s.Reasons) == 0 {
		errors["reasons"] = "A suspicion level above 1 needs at least one reason"
	}
	for _, id := range s.RelatedAccounts {
		if id == s.UserID {
			errors["relatedAccounts"] = "Related accounts must not contain the account itself"
			break
		}
	}
	if _, ok := ParseSuspicionStatus(string(s.Status)); !ok {
		errors["status"] = "Status must be pending, reviewed or dismissed"
	}

	return errors
}

func (s SuspiciousAccount) ToDoc() store.Doc {
	return store.Doc{
		"suspicionLevel":  int64(s.SuspicionLevel),
		"reasons":         append([]string{}, s.Reasons...),
		"relatedAccounts": append([]string{}, s.RelatedAccounts...),
		"deviceId":        s.DeviceID,
		"detectedAt":      s.DetectedAt,
		"status":          string(s.Status),
	}
}

func SuspiciousAccountFromDoc(id string, doc store.Doc) SuspiciousAccount {
	s := SuspiciousAccount{
		UserID:          id,
		SuspicionLevel:  int(store.Int(doc, "suspicionLevel", MinSuspicionLevel)),
		Reasons:         store.Strings(doc, "reasons"),
		RelatedAccounts: store.Strings(doc, "relatedAccounts"),
		DeviceID:        store.String(doc, "deviceId"),
		Status:          SuspicionStatus(store.String(doc, "status")),
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	if s.Reasons == nil {
		s.Reasons = []string{}
	}
	if s.RelatedAccounts == nil {
		s.RelatedAccounts = []string{}
	}
	if t, ok := store.Time(doc, "detectedAt"); ok {
		s.DetectedAt = t
	}
	return s
}

// DeviceRegistration is device_registrations/{deviceId}, written by the mobile app.
type DeviceRegistration struct {
	DeviceID          string    `json:"deviceId"`
	Platform          string    `json:"platform"`
	Model             string    `json:"model,omitempty"`
	Accounts          []string  `json:"accounts"`
	FirstRegistration time.Time `json:"firstRegistration"`
	LastActivity      time.Time `json:"lastActivity"`
}

func (d DeviceRegistration) Shared() bool {
	return len(d.Accounts) >= SharedDeviceThreshold
}

func DeviceRegistrationFromDoc(id string, doc store.Doc) DeviceRegistration {
	d := DeviceRegistration{
		DeviceID: id,
		Platform: store.String(doc, "platform"),
		Model:    store.String(doc, "model"),
		Accounts: uniqueStrings(store.Strings(doc, "accounts")),
	}
	if t, ok := store.Time(doc, "firstRegistration"); ok {
		d.FirstRegistration = t
	}
	if t, ok := store.Time(doc, "lastActivity"); ok {
		d.LastActivity = t
	}
	return d
}

// UserActionLog is one entry of user_actions_log. Older app builds wrote "actionType".
type UserActionLog struct {
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	TargetID  string    `json:"targetId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func UserActionLogFromDoc(doc store.Doc) UserActionLog {
	l := UserActionLog{
		UserID:   store.String(doc, "userId"),
		Action:   store.String(doc, "action"),
		TargetID: store.String(doc, "targetId"),
	}
	if l.Action == "" {
		l.Action = store.String(doc, "actionType")
	}
	if t, ok := store.Time(doc, "timestamp"); ok {
		l.Timestamp = t
	}
	return l
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

package models

import (
	"time"

	"github.com/muso/admin-backend/internal/store"
)

const (
	DefaultScore = 100
	MinScore     = 0
	MaxScore     = 200

	BanPenalty          = -50
	PermanentBanPenalty = -100
	UnbanBonus          = 25
	QuarantinePenalty   = -25

	// PermanentBanHours is the ban length treated as permanent. There is no separate
	// permanent flag; the far-future bannedUntil is the marker.
	PermanentBanHours = 24 * 365 * 10
)

// PermanentBanDuration is PermanentBanHours as a duration.
const PermanentBanDuration = time.Duration(PermanentBanHours) * time.Hour

// RestrictionKey names one flag inside the restrictions map of user_reputation.
type RestrictionKey string

const (
	CanReport     RestrictionKey = "canReport"
	CanComment    RestrictionKey = "canComment"
	CanPost       RestrictionKey = "canPost"
	CanMessage    RestrictionKey = "canMessage"
	CanJoinEvents RestrictionKey = "canJoinEvents"
	CanVote       RestrictionKey = "canVote"
	IsBanned      RestrictionKey = "isBanned"
	Quarantine    RestrictionKey = "quarantine"
	ReviewPending RestrictionKey = "reviewPending"
)

// RestrictionKeys lists every flag in display order.
var RestrictionKeys = []RestrictionKey{
	CanReport, CanComment, CanPost, CanMessage, CanJoinEvents, CanVote,
	IsBanned, Quarantine, ReviewPending,
}

// BanCascade are the access flags a ban clears and an unban restores.
var BanCascade = []RestrictionKey{CanReport, CanComment, CanPost, CanMessage, CanJoinEvents}

func ParseRestrictionKey(s string) (RestrictionKey, bool) {
	for _, k := range RestrictionKeys {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Permissive reports the value of k that grants access.
func (k RestrictionKey) Permissive() bool {
	switch k {
	case IsBanned, Quarantine, ReviewPending:
		return false
	}
	return true
}

// Counter names one of the monotonically increasing counters.
type Counter string

const (
	CounterTotalReports     Counter = "totalReports"
	CounterViolationCount   Counter = "violationCount"
	CounterValidatedReports Counter = "validatedReports"
	CounterFlaggedReports   Counter = "flaggedReports"
	CounterVoteCount        Counter = "voteCount"
)

var Counters = []Counter{
	CounterTotalReports, CounterViolationCount, CounterValidatedReports, CounterFlaggedReports, CounterVoteCount,
}

func ParseCounter(s string) (Counter, bool) {
	for _, c := range Counters {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

type Restrictions struct {
	CanReport     bool       `json:"canReport"`
	CanComment    bool       `json:"canComment"`
	CanPost       bool       `json:"canPost"`
	CanMessage    bool       `json:"canMessage"`
	CanJoinEvents bool       `json:"canJoinEvents"`
	CanVote       bool       `json:"canVote"`
	IsBanned      bool       `json:"isBanned"`
	BannedAt      *time.Time `json:"bannedAt,omitempty"`
	BannedUntil   *time.Time `json:"bannedUntil,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Quarantine    bool       `json:"quarantine"`
	ReviewPending bool       `json:"reviewPending"`
}

func DefaultRestrictions() Restrictions {
	return Restrictions{
		CanReport:     true,
		CanComment:    true,
		CanPost:       true,
		CanMessage:    true,
		CanJoinEvents: true,
		CanVote:       true,
	}
}

func (r Restrictions) Flag(k RestrictionKey) bool {
	switch k {
	case CanReport:
		return r.CanReport
	case CanComment:
		return r.CanComment
	case CanPost:
		return r.CanPost
	case CanMessage:
		return r.CanMessage
	case CanJoinEvents:
		return r.CanJoinEvents
	case CanVote:
		return r.CanVote
	case IsBanned:
		return r.IsBanned
	case Quarantine:
		return r.Quarantine
	case ReviewPending:
		return r.ReviewPending
	}
	return false
}

// UserReputation is the per-user trust state stored in user_reputation/{userId}.
type UserReputation struct {
	UserID           string       `json:"userId"`
	Score            int64        `json:"reputationScore"`
	Restrictions     Restrictions `json:"restrictions"`
	TotalReports     int64        `json:"totalReports"`
	ViolationCount   int64        `json:"violationCount"`
	ValidatedReports int64        `json:"validatedReports"`
	FlaggedReports   int64        `json:"flaggedReports"`
	VoteCount        int64        `json:"voteCount"`
	LastUpdated      time.Time    `json:"lastUpdated,omitempty"`
	// Persisted is false for a default value that has never been written.
	Persisted bool `json:"persisted"`
}

// NewDefaultReputation is the state of a user nobody has acted on yet.
func NewDefaultReputation(userID string) UserReputation {
	return UserReputation{
		UserID:       userID,
		Score:        DefaultScore,
		Restrictions: DefaultRestrictions(),
	}
}

// EffectivelyBanned derives from isBanned only; the cascaded access flags are not consulted.
func (u UserReputation) EffectivelyBanned() bool {
	return u.Restrictions.IsBanned
}

// IsPermanentBan reports whether the current ban was issued with the permanent duration.
// Bans written without bannedAt fall back to comparing bannedUntil against now.
func (u UserReputation) IsPermanentBan(now time.Time) bool {
	r := u.Restrictions
	if !r.IsBanned || r.BannedUntil == nil {
		return false
	}
	if r.BannedAt != nil {
		return r.BannedUntil.Sub(*r.BannedAt) >= PermanentBanDuration
	}
	return r.BannedUntil.Sub(now) >= PermanentBanDuration-365*24*time.Hour
}

// ActiveRestrictions lists every flag currently in its restrictive position.
func (u UserReputation) ActiveRestrictions() []RestrictionKey {
	out := make([]RestrictionKey, 0)
	for _, k := range RestrictionKeys {
		if u.Restrictions.Flag(k) != k.Permissive() {
			out = append(out, k)
		}
	}
	return out
}

func (u UserReputation) Counter(c Counter) int64 {
	switch c {
	case CounterTotalReports:
		return u.TotalReports
	case CounterViolationCount:
		return u.ViolationCount
	case CounterValidatedReports:
		return u.ValidatedReports
	case CounterFlaggedReports:
		return u.FlaggedReports
	case CounterVoteCount:
		return u.VoteCount
	}
	return 0
}

// ClampScore bounds s to [MinScore, MaxScore].
func ClampScore(s int64) int64 {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// ReputationFromDoc fills defaults for any field the document lacks.
// Documents written by older app versions use "score" rather than "reputationScore".
func ReputationFromDoc(userID string, doc store.Doc) UserReputation {
	u := NewDefaultReputation(userID)
	if doc == nil {
		return u
	}
	u.Persisted = true
	if _, ok := doc["reputationScore"]; ok {
		u.Score = store.Int(doc, "reputationScore", DefaultScore)
	} else {
		u.Score = store.Int(doc, "score", DefaultScore)
	}
	u.TotalReports = store.Int(doc, string(CounterTotalReports), 0)
	u.ViolationCount = store.Int(doc, string(CounterViolationCount), 0)
	u.ValidatedReports = store.Int(doc, string(CounterValidatedReports), 0)
	u.FlaggedReports = store.Int(doc, string(CounterFlaggedReports), 0)
	u.VoteCount = store.Int(doc, string(CounterVoteCount), 0)
	if t, ok := store.Time(doc, "lastUpdated"); ok {
		u.LastUpdated = t
	}

	r := store.Map(doc, "restrictions")
	u.Restrictions = Restrictions{
		CanReport:     store.Bool(r, string(CanReport), true),
		CanComment:    store.Bool(r, string(CanComment), true),
		CanPost:       store.Bool(r, string(CanPost), true),
		CanMessage:    store.Bool(r, string(CanMessage), true),
		CanJoinEvents: store.Bool(r, string(CanJoinEvents), true),
		CanVote:       store.Bool(r, string(CanVote), true),
		IsBanned:      store.Bool(r, string(IsBanned), false),
		Quarantine:    store.Bool(r, string(Quarantine), false),
		ReviewPending: store.Bool(r, string(ReviewPending), store.Bool(r, "forceModeration", false)),
		Reason:        store.String(r, "reason"),
	}
	if t, ok := store.Time(r, "bannedUntil"); ok {
		u.Restrictions.BannedUntil = &t
	}
	if t, ok := store.Time(r, "bannedAt"); ok {
		u.Restrictions.BannedAt = &t
	}
	return u
}

// RestrictionsDoc renders r for a merge write. Absent ban timestamps are deleted.
func RestrictionsDoc(r Restrictions) store.Doc {
	doc := store.Doc{
		string(CanReport):     r.CanReport,
		string(CanComment):    r.CanComment,
		string(CanPost):       r.CanPost,
		string(CanMessage):    r.CanMessage,
		string(CanJoinEvents): r.CanJoinEvents,
		string(CanVote):       r.CanVote,
		string(IsBanned):      r.IsBanned,
		string(Quarantine):    r.Quarantine,
		string(ReviewPending): r.ReviewPending,
		"bannedUntil":         store.Delete,
		"bannedAt":            store.Delete,
		"reason":              store.Delete,
	}
	if r.BannedUntil != nil {
		doc["bannedUntil"] = *r.BannedUntil
	}
	if r.BannedAt != nil {
		doc["bannedAt"] = *r.BannedAt
	}
	if r.Reason != "" {
		doc["reason"] = r.Reason
	}
	return doc
}

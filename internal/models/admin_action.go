package models

import (
	"time"

	"github.com/muso/admin-backend/internal/store"
)

// ActionType is the closed set of moderation actions an admin can take.
type ActionType string

const (
	ActionScoreAdjust      ActionType = "scoreAdjust"
	ActionBan              ActionType = "ban"
	ActionUnban            ActionType = "unban"
	ActionQuarantine       ActionType = "quarantine"
	ActionUnquarantine     ActionType = "unquarantine"
	ActionBlockReports     ActionType = "blockReports"
	ActionUnblockReports   ActionType = "unblockReports"
	ActionBlockVotes       ActionType = "blockVotes"
	ActionUnblockVotes     ActionType = "unblockVotes"
	ActionReset            ActionType = "reset"
	ActionNote             ActionType = "note"
	ActionForceModeration  ActionType = "forceModeration"
	ActionRemoveModeration ActionType = "removeModeration"
	ActionRevokeAdmin      ActionType = "revokeAdmin"
	ActionReviewSuspicion  ActionType = "reviewSuspicion"
	ActionResolveReport    ActionType = "resolveReport"
)

var ActionTypes = []ActionType{
	ActionScoreAdjust, ActionBan, ActionUnban, ActionQuarantine, ActionUnquarantine,
	ActionBlockReports, ActionUnblockReports, ActionBlockVotes, ActionUnblockVotes,
	ActionReset, ActionNote, ActionForceModeration, ActionRemoveModeration,
	ActionRevokeAdmin, ActionReviewSuspicion, ActionResolveReport,
}

func ParseActionType(s string) (ActionType, bool) {
	for _, t := range ActionTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// AdminAction is one immutable entry in admin_actions. The target is stored as
// "userId" so the mobile app and the console read the same field.
type AdminAction struct {
	ID           string                 `json:"id"`
	TargetUserID string                 `json:"targetUserId"`
	AdminID      string                 `json:"adminId"`
	ActionType   ActionType             `json:"actionType"`
	Reason       string                 `json:"reason"`
	Metadata     map[string]interface{} `json:"metadata"`
	Timestamp    time.Time              `json:"timestamp"`
}

func (a AdminAction) ToDoc() store.Doc {
	meta := store.Doc{}
	for k, v := range a.Metadata {
		meta[k] = v
	}
	return store.Doc{
		"userId":     a.TargetUserID,
		"adminId":    a.AdminID,
		"actionType": string(a.ActionType),
		"reason":     a.Reason,
		"metadata":   meta,
		"timestamp":  store.ServerTimestamp,
	}
}

func AdminActionFromDoc(id string, doc store.Doc) AdminAction {
	a := AdminAction{
		ID:           id,
		TargetUserID: store.String(doc, "userId"),
		AdminID:      store.String(doc, "adminId"),
		ActionType:   ActionType(store.String(doc, "actionType")),
		Reason:       store.String(doc, "reason"),
		Metadata:     store.Map(doc, "metadata"),
	}
	if t, ok := store.Time(doc, "timestamp"); ok {
		a.Timestamp = t
	}
	return a
}

const DefaultNoteCategory = "note"

// AdminNote is a free-form annotation; nothing automated reads it.
type AdminNote struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	AdminID   string    `json:"adminId"`
	Note      string    `json:"note"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

func (n AdminNote) ToDoc() store.Doc {
	return store.Doc{
		"userId":    n.UserID,
		"adminId":   n.AdminID,
		"note":      n.Note,
		"category":  n.Category,
		"timestamp": store.ServerTimestamp,
	}
}

func AdminNoteFromDoc(id string, doc store.Doc) AdminNote {
	n := AdminNote{
		ID:       id,
		UserID:   store.String(doc, "userId"),
		AdminID:  store.String(doc, "adminId"),
		Note:     store.String(doc, "note"),
		Category: store.String(doc, "category"),
	}
	if n.Category == "" {
		n.Category = DefaultNoteCategory
	}
	if t, ok := store.Time(doc, "timestamp"); ok {
		n.Timestamp = t
	}
	return n
}

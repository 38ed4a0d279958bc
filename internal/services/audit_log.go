package services

import (
	"context"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

const DefaultHistoryLimit = 50

// AuditLog appends to admin_actions and admin_notes. Entries are never updated or deleted.
type AuditLog struct {
	store store.DocumentStore
}

func NewAuditLog(ds store.DocumentStore) *AuditLog {
	return &AuditLog{store: ds}
}

// Append writes one action; the store assigns the timestamp.
func (l *AuditLog) Append(ctx context.Context, a models.AdminAction) (string, error) {
	id, err := l.store.Add(ctx, store.CollectionAdminActions, a.ToDoc())
	if err != nil {
		return "", storeErr("append admin action", err)
	}
	return id, nil
}

// ListForUser returns actions taken against userID, newest first.
func (l *AuditLog) ListForUser(ctx context.Context, userID string, limit int) ([]models.AdminAction, error) {
	return l.listActions(ctx, []store.Filter{{Field: "userId", Op: store.OpEqual, Value: userID}}, limit)
}

// ListByAdmin returns actions performed by adminID, newest first.
func (l *AuditLog) ListByAdmin(ctx context.Context, adminID string, limit int) ([]models.AdminAction, error) {
	return l.listActions(ctx, []store.Filter{{Field: "adminId", Op: store.OpEqual, Value: adminID}}, limit)
}

func (l *AuditLog) listActions(ctx context.Context, filters []store.Filter, limit int) ([]models.AdminAction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	snaps, err := l.store.Query(ctx, store.CollectionAdminActions, store.Query{
		Filters:    filters,
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, storeErr("list admin actions", err)
	}
	out := make([]models.AdminAction, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, models.AdminActionFromDoc(snap.ID, snap.Data))
	}
	return out, nil
}

func (l *AuditLog) AddNote(ctx context.Context, n models.AdminNote) (models.AdminNote, error) {
	if n.Category == "" {
		n.Category = models.DefaultNoteCategory
	}
	id, err := l.store.Add(ctx, store.CollectionAdminNotes, n.ToDoc())
	if err != nil {
		return models.AdminNote{}, storeErr("add note", err)
	}
	n.ID = id
	return n, nil
}

func (l *AuditLog) ListNotes(ctx context.Context, userID string, limit int) ([]models.AdminNote, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	snaps, err := l.store.Query(ctx, store.CollectionAdminNotes, store.Query{
		Filters:    []store.Filter{{Field: "userId", Op: store.OpEqual, Value: userID}},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, storeErr("list notes", err)
	}
	out := make([]models.AdminNote, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, models.AdminNoteFromDoc(snap.ID, snap.Data))
	}
	return out, nil
}

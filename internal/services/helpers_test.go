package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

var (
	adminA1 = Principal{UID: "A1", Email: "a1@example.com"}
	adminA2 = Principal{UID: "A2", Email: "a2@example.com"}
)

type fixture struct {
	store     *store.MemoryStore
	rep       *ReputationService
	admins    *AdminDirectory
	audit     *AuditLog
	suspicion *SuspicionService
	reports   *ReportService
	actions   *ModerationActions
	notifier  *recordingNotifier
}

type recordingNotifier struct {
	batches [][]models.SuspiciousAccount
}

func (n *recordingNotifier) NotifyEscalations(ctx context.Context, accounts []models.SuspiciousAccount) error {
	n.batches = append(n.batches, accounts)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	ds := store.NewMemoryStore()
	ds.SetClock(func() time.Time { return testNow })
	for _, p := range []Principal{adminA1, adminA2} {
		require.NoError(t, ds.Set(ctx, store.CollectionUsers, p.UID, store.Doc{"email": p.Email, "isAdmin": true}))
	}

	rep := NewReputationService(ds, NewUserCache(16, time.Minute))
	rep.SetClock(func() time.Time { return testNow })
	admins := NewAdminDirectory(ds, []string{adminA1.Email, adminA2.Email, "pending@example.com"})
	audit := NewAuditLog(ds)
	notifier := &recordingNotifier{}
	susp := NewSuspicionService(ds, notifier)
	susp.SetClock(func() time.Time { return testNow })
	reports := NewReportService(ds, rep)

	return &fixture{
		store:     ds,
		rep:       rep,
		admins:    admins,
		audit:     audit,
		suspicion: susp,
		reports:   reports,
		actions:   NewModerationActions(admins, rep, audit, susp, reports),
		notifier:  notifier,
	}
}

func (f *fixture) history(t *testing.T, userID string) []models.AdminAction {
	t.Helper()
	out, err := f.audit.ListForUser(context.Background(), userID, 100)
	require.NoError(t, err)
	return out
}

// dump serialises every collection the moderation core writes to.
func (f *fixture) dump(t *testing.T) string {
	t.Helper()
	all := map[string][]store.Snapshot{}
	for _, c := range []string{
		store.CollectionUserReputation, store.CollectionAdminActions, store.CollectionAdminNotes,
		store.CollectionUsers, store.CollectionSuspiciousAccounts, store.CollectionReports,
	} {
		snaps, err := f.store.Query(context.Background(), c, store.Query{})
		require.NoError(t, err)
		all[c] = snaps
	}
	raw, err := json.Marshal(all)
	require.NoError(t, err)
	return string(raw)
}

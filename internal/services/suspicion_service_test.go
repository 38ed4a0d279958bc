package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

func seedDevice(t *testing.T, f *fixture, id string, accounts ...string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), store.CollectionDeviceRegistrations, id, store.Doc{
		"platform":          "ios",
		"accounts":          accounts,
		"firstRegistration": testNow.Add(-72 * time.Hour),
		"lastActivity":      testNow,
	}))
}

func seedActions(t *testing.T, f *fixture, userID, action string, n int, spacing time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.store.Add(context.Background(), store.CollectionUserActionsLog, store.Doc{
			"userId":    userID,
			"action":    action,
			"timestamp": testNow.Add(-time.Hour + time.Duration(i)*spacing),
		})
		require.NoError(t, err)
	}
}

func TestRescore_WritesRecordsForSharedDevicesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDevice(t, f, "d1", "U1", "U2")
	seedDevice(t, f, "d2", "U3")

	report, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SharedDevices)
	assert.Equal(t, 2, report.Flagged)
	assert.Empty(t, report.Escalated)
	assert.Empty(t, f.notifier.batches)

	u1, err := f.suspicion.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, u1.SuspicionLevel)
	assert.Equal(t, []string{"U2"}, u1.RelatedAccounts)
	assert.Equal(t, "d1", u1.DeviceID)
	assert.Equal(t, models.StatusPending, u1.Status)
	assert.True(t, u1.DetectedAt.Equal(testNow))

	_, err = f.suspicion.Get(ctx, "U3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRescore_NeverTouchesReputation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDevice(t, f, "d1", "U1", "U2", "U3", "U4")

	_, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)

	snaps, err := f.store.Query(ctx, store.CollectionUserReputation, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRescore_EscalationNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDevice(t, f, "d1", "U1", "U2", "U3", "U4")
	seedActions(t, f, "U1", "report", 12, 2*time.Second)

	report, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, report.Escalated)
	require.Len(t, f.notifier.batches, 1)
	assert.Equal(t, "U1", f.notifier.batches[0][0].UserID)
	assert.Equal(t, 4, f.notifier.batches[0][0].SuspicionLevel)

	queue, err := f.suspicion.ActionRequired(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "U1", queue[0].UserID)

	// unchanged signals do not re-notify
	report, err = f.suspicion.Rescore(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Escalated)
	assert.Len(t, f.notifier.batches, 1)
}

func TestRescore_ReviewedStatusSurvivesUnlessLevelRises(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDevice(t, f, "d1", "U1", "U2")

	_, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)
	_, err = f.suspicion.SetStatus(ctx, "U1", models.StatusReviewed)
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	f.suspicion.SetClock(func() time.Time { return later })
	_, err = f.suspicion.Rescore(ctx)
	require.NoError(t, err)

	u1, err := f.suspicion.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, u1.Status)
	assert.True(t, u1.DetectedAt.Equal(testNow))

	seedDevice(t, f, "d1", "U1", "U2", "U5")
	_, err = f.suspicion.Rescore(ctx)
	require.NoError(t, err)

	u1, err = f.suspicion.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 2, u1.SuspicionLevel)
	assert.Equal(t, models.StatusPending, u1.Status)
	assert.True(t, u1.DetectedAt.Equal(later))
}

func TestRescore_RapidCreationUsesUserProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"U1", "U2"} {
		require.NoError(t, f.store.Set(ctx, store.CollectionUsers, id, store.Doc{"createdAt": testNow.Add(-time.Hour)}))
	}
	seedDevice(t, f, "d1", "U1", "U2")

	_, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)

	u1, err := f.suspicion.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 2, u1.SuspicionLevel)
	assert.Len(t, u1.Reasons, 2)
}

func TestSuspicion_ListingsAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDevice(t, f, "d1", "U1", "U2")
	seedDevice(t, f, "d2", "U3", "U4", "U5")

	_, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)

	all, err := f.suspicion.ListSuspicious(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, []string{"U3", "U4", "U5", "U1", "U2"}, []string{all[0].UserID, all[1].UserID, all[2].UserID, all[3].UserID, all[4].UserID})

	high, err := f.suspicion.ListSuspicious(ctx, 2, models.StatusPending)
	require.NoError(t, err)
	assert.Len(t, high, 3)

	_, err = f.suspicion.SetStatus(ctx, "U3", models.StatusDismissed)
	require.NoError(t, err)
	dismissed, err := f.suspicion.ListSuspicious(ctx, 1, models.StatusDismissed)
	require.NoError(t, err)
	require.Len(t, dismissed, 1)
	assert.Equal(t, "U3", dismissed[0].UserID)

	counts, err := f.suspicion.LevelCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 2, 2: 3, 3: 0, 4: 0, 5: 0}, counts)

	devices, err := f.suspicion.ListSharedDevices(ctx, 3)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "d2", devices[0].DeviceID)
}

func TestSuspicion_SetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.suspicion.SetStatus(ctx, "ghost", models.StatusReviewed)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.suspicion.SetStatus(ctx, "ghost", "closed")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRescore_ClearsAccountsThatLeftSharedDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDevice(t, f, "d1", "U1", "U2", "U3")

	_, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)

	seedDevice(t, f, "d1", "U1", "U2")
	report, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Flagged)
	assert.Equal(t, 1, report.Cleared)

	u1, err := f.suspicion.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U2"}, u1.RelatedAccounts)

	u3, err := f.suspicion.Get(ctx, "U3")
	require.NoError(t, err)
	assert.Empty(t, u3.RelatedAccounts)
	assert.Empty(t, u3.DeviceID)
	assert.Equal(t, models.MinSuspicionLevel, u3.SuspicionLevel)
	assert.Equal(t, models.StatusDismissed, u3.Status)
	assert.Equal(t, models.ClearedReason, u3.Reasons[0])
	assert.Empty(t, u3.Validate())

	// every stored related pair is mutual
	all, err := f.suspicion.ListSuspicious(ctx, models.MinSuspicionLevel, "")
	require.NoError(t, err)
	byID := make(map[string]models.SuspiciousAccount, len(all))
	for _, a := range all {
		byID[a.UserID] = a
	}
	for _, a := range all {
		for _, peer := range a.RelatedAccounts {
			assert.Contains(t, byID[peer].RelatedAccounts, a.UserID, "%s -> %s", a.UserID, peer)
		}
	}

	// a second run has nothing left to clear
	report, err = f.suspicion.Rescore(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Cleared)

	// returning to a shared device is a fresh detection
	seedDevice(t, f, "d2", "U3", "U9")
	_, err = f.suspicion.Rescore(ctx)
	require.NoError(t, err)
	u3, err = f.suspicion.Get(ctx, "U3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, u3.Status)
	assert.Equal(t, []string{"U9"}, u3.RelatedAccounts)
}

func TestSuspicion_SetStatusRejectsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDevice(t, f, "d1", "U1", "U2")
	_, err := f.suspicion.Rescore(ctx)
	require.NoError(t, err)

	_, err = f.suspicion.SetStatus(ctx, "U1", models.StatusPending)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.actions.Dispatch(ctx, adminA1, ReviewSuspicion{UserID: "U1", Status: models.StatusPending, Reason: "reopen"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.history(t, "U1"))
}

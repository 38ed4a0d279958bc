package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

func TestModeration_QuarantineBanUnbanScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.actions.QuarantineUser(ctx, adminA1, "U1", "suspected spam")
	require.NoError(t, err)
	rep := out.Reputation
	assert.Equal(t, int64(75), rep.Score)
	assert.True(t, rep.Restrictions.Quarantine)
	assert.False(t, rep.Restrictions.CanPost)
	assert.False(t, rep.Restrictions.CanComment)
	assert.True(t, rep.Restrictions.CanReport)
	assert.True(t, rep.Restrictions.CanVote)

	out, err = f.actions.BanUser(ctx, adminA1, "U1", 24, "repeat offense")
	require.NoError(t, err)
	rep = out.Reputation
	assert.Equal(t, int64(25), rep.Score)
	assert.True(t, rep.Restrictions.IsBanned)
	require.NotNil(t, rep.Restrictions.BannedUntil)
	assert.WithinDuration(t, testNow.Add(24*time.Hour), *rep.Restrictions.BannedUntil, time.Second)
	for _, k := range models.BanCascade {
		assert.False(t, rep.Restrictions.Flag(k), string(k))
	}
	assert.Equal(t, 24.0, out.Action.Metadata["durationHours"])
	assert.Equal(t, false, out.Action.Metadata["isPermanent"])
	assert.NotEmpty(t, out.Action.Metadata["bannedUntil"])

	out, err = f.actions.UnbanUser(ctx, adminA1, "U1", "appeal granted")
	require.NoError(t, err)
	rep = out.Reputation
	assert.Equal(t, int64(50), rep.Score)
	assert.False(t, rep.Restrictions.IsBanned)
	for _, k := range models.BanCascade {
		assert.True(t, rep.Restrictions.Flag(k), string(k))
	}

	history := f.history(t, "U1")
	require.Len(t, history, 3)
	assert.Equal(t, models.ActionUnban, history[0].ActionType)
	assert.Equal(t, models.ActionBan, history[1].ActionType)
	assert.Equal(t, models.ActionQuarantine, history[2].ActionType)
	assert.Equal(t, int64(25), history[0].Metadata["scoreBonus"])
}

func TestModeration_EveryActionWritesOneAuditEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, store.CollectionSuspiciousAccounts, "U1", models.SuspiciousAccount{
		UserID: "U1", SuspicionLevel: 2, Reasons: []string{"shared device d1 with 2 other accounts"},
		RelatedAccounts: []string{"U2", "U3"}, DeviceID: "d1", DetectedAt: testNow, Status: models.StatusPending,
	}.ToDoc()))

	actions := []Action{
		ScoreAdjust{UserID: "U1", ScoreChange: -5, Reason: "r"},
		BlockReports{UserID: "U1", Reason: "r"},
		UnblockReports{UserID: "U1", Reason: "r"},
		BlockVotes{UserID: "U1", Reason: "r"},
		UnblockVotes{UserID: "U1", Reason: "r"},
		ForceModeration{UserID: "U1", Reason: "r"},
		RemoveModeration{UserID: "U1", Reason: "r"},
		QuarantineUser{UserID: "U1", Reason: "r"},
		UnquarantineUser{UserID: "U1", Reason: "r"},
		Ban{UserID: "U1", Hours: 1, Reason: "r"},
		Unban{UserID: "U1", Reason: "r"},
		Reset{UserID: "U1", Reason: "r"},
		Note{UserID: "U1", Note: "watch this one"},
		ReviewSuspicion{UserID: "U1", Status: models.StatusReviewed, Reason: "r"},
	}

	for i, a := range actions {
		out, err := f.actions.Dispatch(ctx, adminA1, a)
		require.NoError(t, err, a.Type())
		require.NotEmpty(t, out.Action.ID)

		history := f.history(t, "U1")
		require.Len(t, history, i+1, a.Type())
		latest := history[0]
		assert.Equal(t, a.Type(), latest.ActionType)
		assert.Equal(t, "U1", latest.TargetUserID)
		assert.Equal(t, adminA1.UID, latest.AdminID)
		assert.NotEmpty(t, latest.Reason)
	}
}

func TestModeration_PermissionGatingLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, store.CollectionUsers, "P1", store.Doc{"email": "pending@example.com", "isAdmin": false}))
	_, err := f.actions.AdjustUserScore(ctx, adminA1, "U1", -10, "seed")
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor Principal
		want  error
	}{
		{"unauthenticated", Principal{}, ErrUnauthenticated},
		{"not allow-listed", Principal{UID: "X1", Email: "x@example.com"}, ErrPermissionDenied},
		{"allow-listed without isAdmin", Principal{UID: "P1", Email: "pending@example.com"}, ErrPermissionDenied},
		{"allow-listed without profile", Principal{UID: "P2", Email: "pending@example.com"}, ErrPermissionDenied},
		{"allow-listed email on another uid", Principal{UID: "X2", Email: adminA1.Email}, ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.dump(t)
			for _, a := range []Action{
				Ban{UserID: "U1", Hours: 24, Reason: "r"},
				ScoreAdjust{UserID: "U1", ScoreChange: 10, Reason: "r"},
				Note{UserID: "U1", Note: "n"},
				RevokeAdmin{UserID: adminA2.UID, Reason: "r"},
			} {
				out, err := f.actions.Dispatch(ctx, tt.actor, a)
				assert.ErrorIs(t, err, tt.want)
				assert.Nil(t, out)
			}
			assert.Equal(t, before, f.dump(t))
		})
	}
}

func TestModeration_ValidationRejectsBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.dump(t)

	for _, a := range []Action{
		ScoreAdjust{UserID: "U1", ScoreChange: 0, Reason: "r"},
		ScoreAdjust{UserID: "U1", ScoreChange: 5},
		Ban{UserID: "U1", Hours: 0, Reason: "r"},
		Ban{UserID: "U1", Hours: -3, Reason: "r"},
		Unban{UserID: "", Reason: "r"},
		BlockReports{UserID: "U1", Reason: "   "},
		Note{UserID: "U1"},
		ReviewSuspicion{UserID: "U1", Status: "closed", Reason: "r"},
	} {
		_, err := f.actions.Dispatch(ctx, adminA1, a)
		assert.ErrorIs(t, err, ErrValidation, a.Type())
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	}
	_, err := f.actions.Dispatch(ctx, adminA1, nil)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, before, f.dump(t))
}

func TestModeration_BlockReportsTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		out, err := f.actions.BlockUserReports(ctx, adminA1, "U1", "report abuse")
		require.NoError(t, err)
		assert.False(t, out.Reputation.Restrictions.CanReport)
		assert.Equal(t, int64(100), out.Reputation.Score)
	}
	assert.Len(t, f.history(t, "U1"), 2)
}

func TestModeration_AddAdminNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.actions.AddAdminNote(ctx, adminA1, "U1", "asked for appeal", "")
	require.NoError(t, err)
	require.NotNil(t, out.Note)
	assert.Equal(t, models.DefaultNoteCategory, out.Note.Category)
	assert.Equal(t, "Note added: note", out.Action.Reason)
	assert.Equal(t, 16, out.Action.Metadata["length"])

	notes, err := f.audit.ListNotes(ctx, "U1", 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "asked for appeal", notes[0].Note)
	assert.Equal(t, adminA1.UID, notes[0].AdminID)

	_, err = f.store.Get(ctx, store.CollectionUserReputation, "U1")
	assert.ErrorIs(t, err, store.ErrNoDocument)
}

func TestModeration_RevokeAdminTakesEffectImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.actions.AdjustUserScore(ctx, adminA2, "U1", 5, "bonus")
	require.NoError(t, err)

	out, err := f.actions.Dispatch(ctx, adminA1, RevokeAdmin{UserID: adminA2.UID, Reason: "left the team"})
	require.NoError(t, err)
	assert.Equal(t, true, out.Action.Metadata["previousIsAdmin"])

	_, err = f.actions.AdjustUserScore(ctx, adminA2, "U1", 5, "bonus")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.actions.Dispatch(ctx, adminA1, RevokeAdmin{UserID: adminA1.UID, Reason: "oops"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.actions.Dispatch(ctx, adminA1, RevokeAdmin{UserID: "ghost", Reason: "r"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModeration_ReviewSuspicionUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.actions.Dispatch(context.Background(), adminA1, ReviewSuspicion{UserID: "nobody", Status: models.StatusDismissed, Reason: "r"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.history(t, "nobody"))
}

// failingAuditStore fails every admin_actions append.
type failingAuditStore struct {
	*store.MemoryStore
}

func (s failingAuditStore) Add(ctx context.Context, collection string, doc store.Doc) (string, error) {
	if collection == store.CollectionAdminActions {
		return "", errors.New("quota exceeded")
	}
	return s.MemoryStore.Add(ctx, collection, doc)
}

func TestModeration_AuditFailureKeepsMutationAndReportsIt(t *testing.T) {
	f := newFixture(t)
	ds := failingAuditStore{f.store}
	rep := NewReputationService(ds, nil)
	rep.SetClock(func() time.Time { return testNow })
	actions := NewModerationActions(NewAdminDirectory(ds, []string{adminA1.Email}), rep, NewAuditLog(ds), nil, nil)

	out, err := actions.AdjustUserScore(context.Background(), adminA1, "U1", -20, "spam")
	assert.ErrorIs(t, err, ErrAuditIncomplete)
	assert.ErrorIs(t, err, ErrStore)
	require.NotNil(t, out)
	assert.Empty(t, out.Action.ID)
	assert.Equal(t, int64(80), out.Reputation.Score)

	stored, err := rep.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), stored.Score)
}

func TestModeration_FailedMutationWritesNoAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.actions.BanUser(ctx, adminA1, "U1", 24, "x")
	require.NoError(t, err)
	_, err = f.actions.UnblockUserReports(ctx, adminA1, "U1", "restore")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, f.history(t, "U1"), 1)
}

func TestModeration_UnsavedMutationIsNotVisible(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ds, err := store.OpenMemoryStore(dir)
	require.NoError(t, err)
	require.NoError(t, ds.Set(ctx, store.CollectionUsers, adminA1.UID, store.Doc{"email": adminA1.Email, "isAdmin": true}))

	rep := NewReputationService(ds, NewUserCache(16, time.Minute))
	rep.SetClock(func() time.Time { return testNow })
	audit := NewAuditLog(ds)
	actions := NewModerationActions(NewAdminDirectory(ds, []string{adminA1.Email}), rep, audit, nil, nil)

	// the snapshot path becomes a directory, so the next save fails
	snapshot := filepath.Join(dir, "documents.json")
	require.NoError(t, os.Remove(snapshot))
	require.NoError(t, os.MkdirAll(filepath.Join(snapshot, "blocked"), 0o755))

	_, err = actions.BanUser(ctx, adminA1, "U1", 24, "spam")
	assert.ErrorIs(t, err, ErrStore)

	got, err := rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, got.Restrictions.IsBanned)
	assert.Equal(t, int64(100), got.Score)
	history, err := audit.ListForUser(ctx, "U1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestActionRequest_ToAction(t *testing.T) {
	a, err := ActionRequest{Type: "ban", Hours: 12, Reason: "r"}.ToAction("U1")
	require.NoError(t, err)
	assert.Equal(t, Ban{UserID: "U1", Hours: 12, Reason: "r"}, a)

	a, err = ActionRequest{Type: "reviewSuspicion", Status: "dismissed", Reason: "r"}.ToAction("U1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionReviewSuspicion, a.Type())

	for _, typ := range models.ActionTypes {
		a, err := ActionRequest{Type: string(typ)}.ToAction("U1")
		require.NoError(t, err)
		assert.Equal(t, typ, a.Type())
		assert.Equal(t, "U1", a.Target())
	}

	_, err = ActionRequest{Type: "delete"}.ToAction("U1")
	assert.ErrorIs(t, err, ErrValidation)
}

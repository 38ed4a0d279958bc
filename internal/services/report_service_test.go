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

func seedReports(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]store.Doc{
		// Filed by an older app build: no status and the reporter under "userID".
		"R1": {"type": "dirty", "stopName": "Gare Centrale", "userID": "U1", "timestamp": testNow.Add(-3 * time.Hour)},
		"R2": {"type": "broken", "stopName": "Place Ville", "userId": "U2", "status": "confirmed", "timestamp": testNow.Add(-time.Hour)},
		"R3": {"type": "other", "stopName": "Port", "userId": "U1", "status": "denied", "timestamp": testNow.Add(-2 * time.Hour)},
	}
	for id, doc := range docs {
		require.NoError(t, f.store.Set(ctx, store.CollectionReports, id, doc))
	}
}

func reportIDs(reports []models.Report) []string {
	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestReports_ListFiltersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedReports(t, f)

	tests := []struct {
		name   string
		filter ReportFilter
		want   []string
	}{
		{"all", ReportFilter{}, []string{"R2", "R3", "R1"}},
		{"missing status reads as pending", ReportFilter{Status: models.ReportPending}, []string{"R1"}},
		{"legacy reporter field", ReportFilter{UserID: "U1"}, []string{"R3", "R1"}},
		{"limit", ReportFilter{Limit: 1}, []string{"R2"}},
		{"no match", ReportFilter{Status: models.ReportConfirmed, UserID: "U1"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.reports.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reportIDs(got))
		})
	}

	r1, err := f.reports.Get(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "U1", r1.UserID)
	assert.Equal(t, models.ReportPending, r1.Status)
	assert.Nil(t, r1.ResolvedAt)

	counts, err := f.reports.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.ReportStatus]int{
		models.ReportPending: 1, models.ReportConfirmed: 1, models.ReportDenied: 1,
	}, counts)

	_, err = f.reports.Get(ctx, "R9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReports_ConfirmCreditsReporterOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedReports(t, f)

	// Warm the cache so a stale read would show.
	require.NoError(t, f.rep.RecordCounter(ctx, "U1", models.CounterTotalReports, 2))
	before, err := f.rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, before.ValidatedReports)

	out, err := f.actions.Dispatch(ctx, adminA1, ResolveReport{ReportID: "R1", Status: models.ReportConfirmed})
	require.NoError(t, err)
	require.NotNil(t, out.Report)
	assert.Equal(t, models.ReportConfirmed, out.Report.Status)
	assert.True(t, out.Report.ValidationCounted)
	assert.Equal(t, "A1", out.Report.ResolvedBy)
	assert.Equal(t, "U1", out.Action.TargetUserID)
	assert.Equal(t, "Report confirmed", out.Action.Reason)

	rep, err := f.rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.ValidatedReports)
	assert.EqualValues(t, 2, rep.TotalReports)
	assert.EqualValues(t, 100, rep.Score)

	stored, err := f.reports.Get(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportConfirmed, stored.Status)
	require.NotNil(t, stored.ResolvedAt)

	for _, st := range []models.ReportStatus{models.ReportDenied, models.ReportConfirmed, models.ReportConfirmed} {
		_, err := f.actions.Dispatch(ctx, adminA2, ResolveReport{UserID: "U1", ReportID: "R1", Status: st, Reason: "second look"})
		require.NoError(t, err)
	}
	rep, err = f.rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.ValidatedReports)

	history := f.history(t, "U1")
	require.Len(t, history, 4)
	for _, a := range history {
		assert.Equal(t, models.ActionResolveReport, a.ActionType)
		assert.Equal(t, "R1", a.Metadata["reportId"])
	}
	changed := 0
	for _, a := range history {
		if a.Metadata["changed"] == true {
			changed++
		}
	}
	assert.Equal(t, 3, changed)
}

func TestReports_DenyDoesNotCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedReports(t, f)

	report, changed, err := f.reports.Resolve(ctx, "R1", models.ReportDenied, "A1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, report.ValidationCounted)

	rep, err := f.rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, rep.ValidatedReports)
	assert.False(t, rep.Persisted)
}

func TestReports_ResolveRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedReports(t, f)
	snapshot := f.dump(t)

	tests := []struct {
		name   string
		action ResolveReport
		want   error
	}{
		{"pending is not a decision", ResolveReport{ReportID: "R1", Status: models.ReportPending}, ErrValidation},
		{"missing report id", ResolveReport{Status: models.ReportConfirmed}, ErrValidation},
		{"unknown report", ResolveReport{ReportID: "R9", Status: models.ReportDenied}, ErrNotFound},
		{"reporter mismatch", ResolveReport{UserID: "U2", ReportID: "R1", Status: models.ReportDenied}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.actions.Dispatch(ctx, adminA1, tt.action)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, snapshot, f.dump(t))
}

func TestReports_AnonymousReportIsAuditedWithoutTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, store.CollectionReports, "R4", store.Doc{"type": "dirty", "timestamp": testNow}))

	out, err := f.actions.Dispatch(ctx, adminA1, ResolveReport{ReportID: "R4", Status: models.ReportConfirmed, Reason: "photo matches"})
	require.NoError(t, err)
	assert.False(t, out.Report.ValidationCounted)
	assert.Empty(t, out.Action.TargetUserID)
	assert.Equal(t, "photo matches", out.Action.Reason)
	assert.NotEmpty(t, out.Action.ID)

	snaps, err := f.store.Query(ctx, store.CollectionUserReputation, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

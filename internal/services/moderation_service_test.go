package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

func fixedDetector(res SafeSearchResult) SafeSearchDetector {
	return func(ctx context.Context, gcsURI string) (*SafeSearchResult, error) {
		out := res
		return &out, nil
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		name   string
		ok     bool
	}{
		{"gs://media/reports/abc.jpg", "media", "reports/abc.jpg", true},
		{"https://media/abc.jpg", "", "", false},
		{"gs://media", "", "", false},
		{"gs:///abc.jpg", "", "", false},
	}
	for _, tt := range tests {
		bucket, name, err := ParseGCSURI(tt.uri)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrValidation, tt.uri)
			continue
		}
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.bucket, bucket)
		assert.Equal(t, tt.name, name)
	}
}

func TestScanReportedMedia_UnsafeBumpsCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewModerationService(nil, f.rep)
	m.SetDetector(fixedDetector(SafeSearchResult{Adult: "VERY_LIKELY", Violence: "UNLIKELY", Racy: "POSSIBLE"}))

	res, err := m.ScanReportedMedia(ctx, "U1", "gs://media/reports/1.jpg")
	require.NoError(t, err)
	assert.True(t, res.Unsafe)
	assert.Equal(t, []string{"adult"}, res.Categories)

	rep, err := f.rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.ViolationCount)
	assert.EqualValues(t, 1, rep.FlaggedReports)
	assert.EqualValues(t, 100, rep.Score)
	assert.False(t, rep.Restrictions.IsBanned)
	assert.Empty(t, f.history(t, "U1"))
}

func TestScanReportedMedia_SafeLeavesUserAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewModerationService(nil, f.rep)
	m.SetDetector(fixedDetector(SafeSearchResult{Adult: "UNLIKELY", Violence: "POSSIBLE", Racy: "VERY_UNLIKELY"}))

	res, err := m.ScanReportedMedia(ctx, "U1", "gs://media/reports/2.jpg")
	require.NoError(t, err)
	assert.False(t, res.Unsafe)
	assert.Empty(t, res.Categories)
	snaps, err := f.store.Query(ctx, store.CollectionUserReputation, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestScanReportedMedia_DetectorFailure(t *testing.T) {
	f := newFixture(t)
	m := NewModerationService(nil, f.rep)
	boom := errors.New("vision unavailable")
	m.SetDetector(func(ctx context.Context, gcsURI string) (*SafeSearchResult, error) { return nil, boom })

	_, err := m.ScanReportedMedia(context.Background(), "U1", "gs://media/reports/3.jpg")
	assert.ErrorIs(t, err, boom)

	_, err = m.ScanReportedMedia(context.Background(), "U1", "media/reports/3.jpg")
	assert.ErrorIs(t, err, ErrValidation)
}

// flakyMergeStore fails the next transactional merge that touches field.
type flakyMergeStore struct {
	*store.MemoryStore
	field string
	fails int
}

type flakyMergeTx struct {
	store.Tx
	s *flakyMergeStore
}

func (s *flakyMergeStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.MemoryStore.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, flakyMergeTx{Tx: tx, s: s})
	})
}

func (s *flakyMergeStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	if field == s.field && s.fails > 0 {
		s.fails--
		return errors.New("write aborted")
	}
	return s.MemoryStore.Increment(ctx, collection, id, field, delta)
}

func (tx flakyMergeTx) Merge(collection, id string, doc store.Doc) error {
	if _, ok := doc[tx.s.field]; ok && tx.s.fails > 0 {
		tx.s.fails--
		return errors.New("write aborted")
	}
	return tx.Tx.Merge(collection, id, doc)
}

func TestScanReportedMedia_RetryAfterFailedWriteCountsOnce(t *testing.T) {
	ctx := context.Background()
	ds := &flakyMergeStore{MemoryStore: store.NewMemoryStore(), field: string(models.CounterFlaggedReports), fails: 1}
	rep := NewReputationService(ds, NewUserCache(16, 0))
	m := NewModerationService(nil, rep)
	m.SetDetector(fixedDetector(SafeSearchResult{Adult: "LIKELY", Violence: "UNLIKELY", Racy: "UNLIKELY"}))

	_, err := m.ScanReportedMedia(ctx, "U1", "gs://media/reports/4.jpg")
	require.ErrorIs(t, err, ErrStore)
	got, err := rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, got.ViolationCount)
	assert.Zero(t, got.FlaggedReports)

	_, err = m.ScanReportedMedia(ctx, "U1", "gs://media/reports/4.jpg")
	require.NoError(t, err)
	got, err = rep.Get(ctx, "U1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ViolationCount)
	assert.EqualValues(t, 1, got.FlaggedReports)
}

func TestReputation_RecordCountersValidatesEveryEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.rep.RecordCounters(ctx, "U1", map[models.Counter]int64{
		models.CounterVoteCount:    1,
		models.CounterTotalReports: 0,
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, f.rep.RecordCounters(ctx, "U1", nil), ErrValidation)

	snaps, err := f.store.Query(ctx, store.CollectionUserReputation, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

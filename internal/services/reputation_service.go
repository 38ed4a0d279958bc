package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

// maxBanHours bounds ban durations so the computed bannedUntil stays representable.
const maxBanHours = models.PermanentBanHours * 10

// Mutation is the state of one user before and after a committed change.
type Mutation struct {
	Before models.UserReputation
	After  models.UserReputation
}

func (m Mutation) ScoreDelta() int64 { return m.After.Score - m.Before.Score }

// ReputationService owns user_reputation. Every write goes through a transaction on
// the user's document, so changes to one user are linearised.
type ReputationService struct {
	store store.DocumentStore
	cache *UserCache
	now   func() time.Time
}

func NewReputationService(ds store.DocumentStore, cache *UserCache) *ReputationService {
	return &ReputationService{store: ds, cache: cache, now: time.Now}
}

// SetClock overrides the time source used for ban expiry.
func (s *ReputationService) SetClock(now func() time.Time) { s.now = now }

func (s *ReputationService) Now() time.Time { return s.now() }

// Get returns the stored reputation, or the default value for a user nobody has acted on.
// It never writes.
func (s *ReputationService) Get(ctx context.Context, userID string) (models.UserReputation, error) {
	if userID == "" {
		return models.UserReputation{}, NewValidationError("userId", "User ID is required")
	}
	if rep, ok := s.cache.Get(userID); ok {
		return rep, nil
	}
	epoch := s.cache.Epoch()
	doc, err := s.store.Get(ctx, store.CollectionUserReputation, userID)
	if errors.Is(err, store.ErrNoDocument) {
		return models.NewDefaultReputation(userID), nil
	}
	if err != nil {
		return models.UserReputation{}, storeErr("get reputation", err)
	}
	rep := models.ReputationFromDoc(userID, doc)
	s.cache.PutIfUnchanged(rep, epoch)
	return rep, nil
}

// mutate runs apply inside a transaction on user_reputation/{userID}. apply may be
// invoked more than once when the backend retries.
func (s *ReputationService) mutate(ctx context.Context, userID, op string, apply func(rep *models.UserReputation) error) (Mutation, error) {
	if userID == "" {
		return Mutation{}, NewValidationError("userId", "User ID is required")
	}

	var result Mutation
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(store.CollectionUserReputation, userID)
		if err != nil && !errors.Is(err, store.ErrNoDocument) {
			return err
		}
		before := models.ReputationFromDoc(userID, doc)
		after := before
		if err := apply(&after); err != nil {
			return err
		}
		after.Score = models.ClampScore(after.Score)

		write := store.Doc{
			"reputationScore": after.Score,
			"restrictions":    models.RestrictionsDoc(after.Restrictions),
			"lastUpdated":     store.ServerTimestamp,
		}
		if !before.Persisted {
			for _, c := range models.Counters {
				write[string(c)] = int64(0)
			}
		}
		if err := tx.Merge(store.CollectionUserReputation, userID, write); err != nil {
			return err
		}
		after.Persisted = true
		after.LastUpdated = s.now().UTC()
		result = Mutation{Before: before, After: after}
		return nil
	})
	s.cache.Invalidate(userID)
	if err != nil {
		return Mutation{}, storeErr(op, err)
	}
	return result, nil
}

// AdjustScore adds delta to the score, clamped to [0, 200].
func (s *ReputationService) AdjustScore(ctx context.Context, userID string, delta int64) (Mutation, error) {
	return s.mutate(ctx, userID, "adjust score", func(rep *models.UserReputation) error {
		rep.Score += delta
		return nil
	})
}

// SetRestriction writes one flag without cascading. isBanned is only written by Ban and
// Unban, and the ban cascade flags cannot be restored while the user is banned.
func (s *ReputationService) SetRestriction(ctx context.Context, userID string, key models.RestrictionKey, value bool) (Mutation, error) {
	if key == models.IsBanned {
		return Mutation{}, NewValidationError("key", "isBanned is set by ban and unban only")
	}
	if _, ok := models.ParseRestrictionKey(string(key)); !ok {
		return Mutation{}, NewValidationError("key", fmt.Sprintf("unknown restriction %q", key))
	}
	return s.mutate(ctx, userID, "set restriction", func(rep *models.UserReputation) error {
		if rep.Restrictions.IsBanned && value && inBanCascade(key) {
			return NewValidationError("userId", "user is banned; unban before restoring "+string(key))
		}
		setFlag(&rep.Restrictions, key, value)
		return nil
	})
}

// Ban bans for hours from now. A duration of at least ten years is permanent.
// Every call debits the penalty, including a re-ban that extends or escalates an existing one.
func (s *ReputationService) Ban(ctx context.Context, userID string, hours float64, reason string) (Mutation, error) {
	if math.IsNaN(hours) || hours <= 0 {
		return Mutation{}, NewValidationError("hours", "Ban duration must be positive")
	}
	if hours > maxBanHours {
		return Mutation{}, NewValidationError("hours", "Ban duration is too long")
	}
	now := s.now().UTC()
	until := now.Add(time.Duration(hours * float64(time.Hour)))
	penalty := int64(models.BanPenalty)
	if hours >= models.PermanentBanHours {
		penalty = models.PermanentBanPenalty
	}

	return s.mutate(ctx, userID, "ban", func(rep *models.UserReputation) error {
		r := &rep.Restrictions
		r.IsBanned = true
		r.BannedAt = &now
		r.BannedUntil = &until
		r.Reason = reason
		for _, k := range models.BanCascade {
			setFlag(r, k, false)
		}
		rep.Score += penalty
		return nil
	})
}

// Unban lifts the ban, restores all five cascaded flags and credits the bonus. Posting
// and commenting come back even for a quarantined user; the quarantine flag itself is left
// set until Unquarantine.
func (s *ReputationService) Unban(ctx context.Context, userID string) (Mutation, error) {
	return s.mutate(ctx, userID, "unban", func(rep *models.UserReputation) error {
		r := &rep.Restrictions
		r.IsBanned = false
		r.BannedAt = nil
		r.BannedUntil = nil
		r.Reason = ""
		for _, k := range models.BanCascade {
			setFlag(r, k, true)
		}
		rep.Score += models.UnbanBonus
		return nil
	})
}

// Quarantine blocks posting and commenting and debits the quarantine penalty. Voting and
// reporting stay as they are.
func (s *ReputationService) Quarantine(ctx context.Context, userID string) (Mutation, error) {
	return s.mutate(ctx, userID, "quarantine", func(rep *models.UserReputation) error {
		rep.Restrictions.Quarantine = true
		rep.Restrictions.CanPost = false
		rep.Restrictions.CanComment = false
		rep.Score += models.QuarantinePenalty
		return nil
	})
}

// Unquarantine clears quarantine. A banned user keeps posting and commenting blocked.
func (s *ReputationService) Unquarantine(ctx context.Context, userID string) (Mutation, error) {
	return s.mutate(ctx, userID, "unquarantine", func(rep *models.UserReputation) error {
		rep.Restrictions.Quarantine = false
		if !rep.Restrictions.IsBanned {
			rep.Restrictions.CanPost = true
			rep.Restrictions.CanComment = true
		}
		return nil
	})
}

func (s *ReputationService) BlockReports(ctx context.Context, userID string) (Mutation, error) {
	return s.SetRestriction(ctx, userID, models.CanReport, false)
}

func (s *ReputationService) UnblockReports(ctx context.Context, userID string) (Mutation, error) {
	return s.SetRestriction(ctx, userID, models.CanReport, true)
}

func (s *ReputationService) BlockVotes(ctx context.Context, userID string) (Mutation, error) {
	return s.SetRestriction(ctx, userID, models.CanVote, false)
}

func (s *ReputationService) UnblockVotes(ctx context.Context, userID string) (Mutation, error) {
	return s.SetRestriction(ctx, userID, models.CanVote, true)
}

func (s *ReputationService) SetForcedModeration(ctx context.Context, userID string, value bool) (Mutation, error) {
	return s.SetRestriction(ctx, userID, models.ReviewPending, value)
}

// Reset restores score 100 and permissive flags. Counters and history are kept.
func (s *ReputationService) Reset(ctx context.Context, userID string) (Mutation, error) {
	return s.mutate(ctx, userID, "reset", func(rep *models.UserReputation) error {
		rep.Score = models.DefaultScore
		rep.Restrictions = models.DefaultRestrictions()
		return nil
	})
}

// RecordCounter bumps one of the activity counters. Counters never decrease.
func (s *ReputationService) RecordCounter(ctx context.Context, userID string, counter models.Counter, delta int64) error {
	return s.RecordCounters(ctx, userID, map[models.Counter]int64{counter: delta})
}

// RecordCounters bumps several counters in a single write, so a failed call leaves all of
// them untouched and a retry cannot count any of them twice.
func (s *ReputationService) RecordCounters(ctx context.Context, userID string, deltas map[models.Counter]int64) error {
	if userID == "" {
		return NewValidationError("userId", "User ID is required")
	}
	if len(deltas) == 0 {
		return NewValidationError("counter", "No counters given")
	}
	for c, delta := range deltas {
		if _, ok := models.ParseCounter(string(c)); !ok {
			return NewValidationError("counter", fmt.Sprintf("unknown counter %q", c))
		}
		if delta <= 0 {
			return NewValidationError("delta", "Counters only increase")
		}
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(store.CollectionUserReputation, userID)
		if err != nil && !errors.Is(err, store.ErrNoDocument) {
			return err
		}
		rep := models.ReputationFromDoc(userID, doc)
		write := store.Doc{}
		for c, delta := range deltas {
			write[string(c)] = rep.Counter(c) + delta
		}
		return tx.Merge(store.CollectionUserReputation, userID, write)
	})
	s.cache.Invalidate(userID)
	if err != nil {
		return storeErr("record counter", err)
	}
	zap.S().Debugw("counters recorded", "userId", userID, "counters", deltas)
	return nil
}

// ListRestricted returns every user with at least one flag in its restrictive position,
// ordered by user id.
func (s *ReputationService) ListRestricted(ctx context.Context) ([]models.UserReputation, error) {
	seen := make(map[string]models.UserReputation)
	for _, k := range models.RestrictionKeys {
		snaps, err := s.store.Query(ctx, store.CollectionUserReputation, store.Query{
			Filters: []store.Filter{{Field: "restrictions." + string(k), Op: store.OpEqual, Value: !k.Permissive()}},
		})
		if err != nil {
			return nil, storeErr("list restricted", err)
		}
		for _, snap := range snaps {
			if _, ok := seen[snap.ID]; ok {
				continue
			}
			seen[snap.ID] = models.ReputationFromDoc(snap.ID, snap.Data)
		}
	}

	out := make([]models.UserReputation, 0, len(seen))
	for _, rep := range seen {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func inBanCascade(key models.RestrictionKey) bool {
	for _, k := range models.BanCascade {
		if k == key {
			return true
		}
	}
	return false
}

func setFlag(r *models.Restrictions, key models.RestrictionKey, value bool) {
	switch key {
	case models.CanReport:
		r.CanReport = value
	case models.CanComment:
		r.CanComment = value
	case models.CanPost:
		r.CanPost = value
	case models.CanMessage:
		r.CanMessage = value
	case models.CanJoinEvents:
		r.CanJoinEvents = value
	case models.CanVote:
		r.CanVote = value
	case models.IsBanned:
		r.IsBanned = value
	case models.Quarantine:
		r.Quarantine = value
	case models.ReviewPending:
		r.ReviewPending = value
	}
}

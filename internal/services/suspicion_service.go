package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

// behaviourLookback is how far back user_actions_log is read per scoring run.
const behaviourLookback = 24 * time.Hour

// ScoringReport summarises one scoring run.
type ScoringReport struct {
	SharedDevices int      `json:"sharedDevices"`
	Flagged       int      `json:"flagged"`
	Cleared       int      `json:"cleared"`
	Escalated     []string `json:"escalated"`
}

// SuspicionService maintains suspicious_accounts from device_registrations and
// user_actions_log. It never touches user_reputation.
type SuspicionService struct {
	store    store.DocumentStore
	notifier ReviewNotifier
	now      func() time.Time
}

func NewSuspicionService(ds store.DocumentStore, notifier ReviewNotifier) *SuspicionService {
	return &SuspicionService{store: ds, notifier: notifier, now: time.Now}
}

func (s *SuspicionService) SetClock(now func() time.Time) { s.now = now }

// Rescore recomputes every account on a shared device. A reviewed or dismissed record
// keeps its status unless its level went up. Records of accounts that are no longer on any
// shared device are cleared, so relatedAccounts stays symmetric.
func (s *SuspicionService) Rescore(ctx context.Context) (ScoringReport, error) {
	now := s.now().UTC()
	devices, err := s.ListSharedDevices(ctx, models.SharedDeviceThreshold)
	if err != nil {
		return ScoringReport{}, err
	}

	signals, err := s.collectSignals(ctx, devices, now)
	if err != nil {
		return ScoringReport{}, err
	}
	scored := EvaluateDevices(devices, signals, now)

	ids := make([]string, 0, len(scored))
	for id := range scored {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := ScoringReport{SharedDevices: len(devices), Escalated: []string{}}
	escalated := make([]models.SuspiciousAccount, 0)
	for _, id := range ids {
		next := scored[id]
		doc, err := s.store.Get(ctx, store.CollectionSuspiciousAccounts, id)
		if err != nil && !errors.Is(err, store.ErrNoDocument) {
			return report, storeErr("load suspicious account", err)
		}
		if doc != nil && !isCleared(models.SuspiciousAccountFromDoc(id, doc)) {
			prev := models.SuspiciousAccountFromDoc(id, doc)
			if next.SuspicionLevel <= prev.SuspicionLevel {
				next.Status = prev.Status
				if !prev.DetectedAt.IsZero() {
					next.DetectedAt = prev.DetectedAt
				}
			}
			if next.ActionRequired() && (!prev.ActionRequired() || next.SuspicionLevel > prev.SuspicionLevel) {
				escalated = append(escalated, next)
			}
		} else if next.ActionRequired() {
			escalated = append(escalated, next)
		}

		if problems := next.Validate(); len(problems) > 0 {
			zap.S().Warnw("suspicion record failed validation", "userId", id, "problems", problems)
			continue
		}
		if err := s.store.Set(ctx, store.CollectionSuspiciousAccounts, id, next.ToDoc()); err != nil {
			return report, storeErr("save suspicious account", err)
		}
		report.Flagged++
	}

	cleared, err := s.clearStale(ctx, scored)
	if err != nil {
		return report, err
	}
	report.Cleared = cleared

	for _, a := range escalated {
		report.Escalated = append(report.Escalated, a.UserID)
	}
	if s.notifier != nil && len(escalated) > 0 {
		if err := s.notifier.NotifyEscalations(ctx, escalated); err != nil {
			zap.S().Warnw("review notification failed", "error", err, "accounts", report.Escalated)
		}
	}
	zap.S().Infow("suspicion scoring finished", "sharedDevices", report.SharedDevices, "flagged", report.Flagged, "cleared", report.Cleared, "escalated", len(report.Escalated))
	return report, nil
}

// clearStale dismisses every stored record missing from scored. The record drops its
// device and related accounts and falls back to the minimum level; earlier reasons are kept
// after the clearing reason.
func (s *SuspicionService) clearStale(ctx context.Context, scored map[string]models.SuspiciousAccount) (int, error) {
	snaps, err := s.store.Query(ctx, store.CollectionSuspiciousAccounts, store.Query{})
	if err != nil {
		return 0, storeErr("list suspicious accounts", err)
	}
	cleared := 0
	for _, snap := range snaps {
		if _, ok := scored[snap.ID]; ok {
			continue
		}
		prev := models.SuspiciousAccountFromDoc(snap.ID, snap.Data)
		if isCleared(prev) {
			continue
		}
		next := prev
		next.SuspicionLevel = models.MinSuspicionLevel
		next.RelatedAccounts = []string{}
		next.DeviceID = ""
		next.Status = models.StatusDismissed
		next.Reasons = append([]string{models.ClearedReason}, withoutReason(prev.Reasons, models.ClearedReason)...)
		if err := s.store.Set(ctx, store.CollectionSuspiciousAccounts, snap.ID, next.ToDoc()); err != nil {
			return cleared, storeErr("clear suspicious account", err)
		}
		zap.S().Infow("suspicion record cleared", "userId", snap.ID, "previousLevel", prev.SuspicionLevel)
		cleared++
	}
	return cleared, nil
}

// isCleared reports whether clearStale already wrote this record. A cleared account that
// turns up on a shared device again is scored as a new detection.
func isCleared(a models.SuspiciousAccount) bool {
	return a.DeviceID == "" && len(a.RelatedAccounts) == 0 && a.Status == models.StatusDismissed
}

func withoutReason(reasons []string, drop string) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r != drop {
			out = append(out, r)
		}
	}
	return out
}

func (s *SuspicionService) collectSignals(ctx context.Context, devices []models.DeviceRegistration, now time.Time) (AccountSignals, error) {
	signals := AccountSignals{
		CreatedAt: make(map[string]time.Time),
		Bursts:    make(map[string]ActionBurst),
	}
	seen := make(map[string]bool)
	for _, d := range devices {
		for _, acct := range d.Accounts {
			if seen[acct] {
				continue
			}
			seen[acct] = true

			doc, err := s.store.Get(ctx, store.CollectionUsers, acct)
			if err != nil && !errors.Is(err, store.ErrNoDocument) {
				return signals, storeErr("load user", err)
			}
			if t, ok := store.Time(doc, "createdAt"); ok {
				signals.CreatedAt[acct] = t
			}

			snaps, err := s.store.Query(ctx, store.CollectionUserActionsLog, store.Query{
				Filters: []store.Filter{
					{Field: "userId", Op: store.OpEqual, Value: acct},
					{Field: "timestamp", Op: store.OpGreaterOrEq, Value: now.Add(-behaviourLookback)},
				},
			})
			if err != nil {
				return signals, storeErr("load user actions", err)
			}
			logs := make([]models.UserActionLog, 0, len(snaps))
			for _, snap := range snaps {
				logs = append(logs, models.UserActionLogFromDoc(snap.Data))
			}
			if b, ok := WorstBurst(logs); ok {
				signals.Bursts[acct] = b
			}
		}
	}
	return signals, nil
}

func (s *SuspicionService) Get(ctx context.Context, userID string) (models.SuspiciousAccount, error) {
	doc, err := s.store.Get(ctx, store.CollectionSuspiciousAccounts, userID)
	if errors.Is(err, store.ErrNoDocument) {
		return models.SuspiciousAccount{}, ErrNotFound
	}
	if err != nil {
		return models.SuspiciousAccount{}, storeErr("load suspicious account", err)
	}
	return models.SuspiciousAccountFromDoc(userID, doc), nil
}

// ListSuspicious returns accounts at or above minLevel, highest level first, then most
// recently detected. An empty status matches every status.
func (s *SuspicionService) ListSuspicious(ctx context.Context, minLevel int, status models.SuspicionStatus) ([]models.SuspiciousAccount, error) {
	q := store.Query{}
	if minLevel > models.MinSuspicionLevel {
		q.Filters = append(q.Filters, store.Filter{Field: "suspicionLevel", Op: store.OpGreaterOrEq, Value: int64(minLevel)})
	}
	if status != "" {
		q.Filters = append(q.Filters, store.Filter{Field: "status", Op: store.OpEqual, Value: string(status)})
	}
	snaps, err := s.store.Query(ctx, store.CollectionSuspiciousAccounts, q)
	if err != nil {
		return nil, storeErr("list suspicious accounts", err)
	}

	out := make([]models.SuspiciousAccount, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, models.SuspiciousAccountFromDoc(snap.ID, snap.Data))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuspicionLevel != out[j].SuspicionLevel {
			return out[i].SuspicionLevel > out[j].SuspicionLevel
		}
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// ActionRequired is the review queue: pending accounts at level 4 or above.
func (s *SuspicionService) ActionRequired(ctx context.Context) ([]models.SuspiciousAccount, error) {
	return s.ListSuspicious(ctx, models.ActionRequiredLevel, models.StatusPending)
}

// ListSharedDevices returns devices with at least minAccounts distinct accounts, most
// accounts first.
func (s *SuspicionService) ListSharedDevices(ctx context.Context, minAccounts int) ([]models.DeviceRegistration, error) {
	if minAccounts < models.SharedDeviceThreshold {
		minAccounts = models.SharedDeviceThreshold
	}
	snaps, err := s.store.Query(ctx, store.CollectionDeviceRegistrations, store.Query{})
	if err != nil {
		return nil, storeErr("list devices", err)
	}
	out := make([]models.DeviceRegistration, 0)
	for _, snap := range snaps {
		d := models.DeviceRegistrationFromDoc(snap.ID, snap.Data)
		if len(d.Accounts) >= minAccounts {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Accounts) != len(out[j].Accounts) {
			return len(out[i].Accounts) > len(out[j].Accounts)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out, nil
}

// LevelCounts maps each suspicion level to the number of accounts at it.
func (s *SuspicionService) LevelCounts(ctx context.Context) (map[int]int, error) {
	all, err := s.ListSuspicious(ctx, models.MinSuspicionLevel, "")
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int, models.MaxSuspicionLevel)
	for lvl := models.MinSuspicionLevel; lvl <= models.MaxSuspicionLevel; lvl++ {
		counts[lvl] = 0
	}
	for _, a := range all {
		counts[a.SuspicionLevel]++
	}
	return counts, nil
}

// SetStatus records a moderator's review decision.
func (s *SuspicionService) SetStatus(ctx context.Context, userID string, status models.SuspicionStatus) (models.SuspiciousAccount, error) {
	if !models.IsReviewDecision(status) {
		return models.SuspiciousAccount{}, NewValidationError("status", "Status must be reviewed or dismissed")
	}
	var out models.SuspiciousAccount
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(store.CollectionSuspiciousAccounts, userID)
		if errors.Is(err, store.ErrNoDocument) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out = models.SuspiciousAccountFromDoc(userID, doc)
		out.Status = status
		return tx.Merge(store.CollectionSuspiciousAccounts, userID, store.Doc{"status": string(status)})
	})
	if errors.Is(err, ErrNotFound) {
		return models.SuspiciousAccount{}, ErrNotFound
	}
	if err != nil {
		return models.SuspiciousAccount{}, storeErr("set suspicion status", err)
	}
	return out, nil
}

package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/muso/admin-backend/internal/models"
)

const (
	RapidCreationWindow    = 24 * time.Hour
	RepeatedActionWindow   = 60 * time.Second
	RepeatedActionMinCount = 10
)

// AccountSignals are the per-account inputs besides device sharing.
type AccountSignals struct {
	CreatedAt map[string]time.Time
	// Bursts holds, per account, its worst run of identical actions inside RepeatedActionWindow.
	Bursts map[string]ActionBurst
}

type ActionBurst struct {
	Action string
	Count  int
}

// deviceBaseLevel maps the number of accounts on one device to a level.
func deviceBaseLevel(accounts int) int {
	switch {
	case accounts < models.SharedDeviceThreshold:
		return 0
	case accounts == 2:
		return 1
	case accounts == 3:
		return 2
	}
	return 3
}

// EvaluateDevices scores every account that appears on a shared device. Each level
// increment is paired with a reason. relatedAccounts is the union of co-located accounts
// over all shared devices, so the relation is symmetric.
func EvaluateDevices(devices []models.DeviceRegistration, signals AccountSignals, now time.Time) map[string]models.SuspiciousAccount {
	byAccount := make(map[string][]models.DeviceRegistration)
	rapid := make(map[string]int)
	for _, d := range devices {
		if !d.Shared() {
			continue
		}
		for _, acct := range d.Accounts {
			byAccount[acct] = append(byAccount[acct], d)
		}
		rapid[d.DeviceID] = rapidCreationCount(d.Accounts, signals.CreatedAt)
	}

	out := make(map[string]models.SuspiciousAccount, len(byAccount))
	for acct, devs := range byAccount {
		sort.Slice(devs, func(i, j int) bool {
			bi, bj := deviceBaseLevel(len(devs[i].Accounts)), deviceBaseLevel(len(devs[j].Accounts))
			if bi != bj {
				return bi > bj
			}
			if !devs[i].LastActivity.Equal(devs[j].LastActivity) {
				return devs[i].LastActivity.After(devs[j].LastActivity)
			}
			return devs[i].DeviceID < devs[j].DeviceID
		})

		primary := devs[0]
		level := deviceBaseLevel(len(primary.Accounts))
		reasons := make([]string, 0, len(devs)+3)
		related := make(map[string]bool)
		for _, d := range devs {
			reasons = append(reasons, fmt.Sprintf("shared device %s with %d other accounts", d.DeviceID, len(d.Accounts)-1))
			for _, other := range d.Accounts {
				if other != acct {
					related[other] = true
				}
			}
		}

		rapidHit := false
		for _, d := range devs {
			if k := rapid[d.DeviceID]; k >= 2 {
				reasons = append(reasons, fmt.Sprintf("rapid account creation: %d accounts created within 24h on device %s", k, d.DeviceID))
				rapidHit = true
			}
		}
		if rapidHit {
			level++
		}

		if len(devs) >= 2 {
			level++
			reasons = append(reasons, fmt.Sprintf("linked to %d shared devices", len(devs)))
		}

		if b, ok := signals.Bursts[acct]; ok && b.Count >= RepeatedActionMinCount {
			level++
			reasons = append(reasons, fmt.Sprintf("rapid repeated identical actions: %d x %s within 60s", b.Count, b.Action))
		}

		if level > models.MaxSuspicionLevel {
			level = models.MaxSuspicionLevel
		}

		relatedIDs := make([]string, 0, len(related))
		for id := range related {
			relatedIDs = append(relatedIDs, id)
		}
		sort.Strings(relatedIDs)

		out[acct] = models.SuspiciousAccount{
			UserID:          acct,
			SuspicionLevel:  level,
			Reasons:         reasons,
			RelatedAccounts: relatedIDs,
			DeviceID:        primary.DeviceID,
			DetectedAt:      now,
			Status:          models.StatusPending,
		}
	}
	return out
}

// rapidCreationCount is the largest number of accounts on the device created within
// RapidCreationWindow of each other. Accounts without a creation time are ignored.
func rapidCreationCount(accounts []string, createdAt map[string]time.Time) int {
	times := make([]time.Time, 0, len(accounts))
	for _, a := range accounts {
		if t, ok := createdAt[a]; ok && !t.IsZero() {
			times = append(times, t)
		}
	}
	return maxInWindow(times, RapidCreationWindow)
}

func maxInWindow(times []time.Time, window time.Duration) int {
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	best := 0
	lo := 0
	for hi := range times {
		for times[hi].Sub(times[lo]) > window {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best = n
		}
	}
	return best
}

// WorstBurst finds the action repeated most often within RepeatedActionWindow.
func WorstBurst(logs []models.UserActionLog) (ActionBurst, bool) {
	byAction := make(map[string][]time.Time)
	for _, l := range logs {
		if l.Action == "" || l.Timestamp.IsZero() {
			continue
		}
		byAction[l.Action] = append(byAction[l.Action], l.Timestamp)
	}
	actions := make([]string, 0, len(byAction))
	for a := range byAction {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	var worst ActionBurst
	for _, a := range actions {
		if n := maxInWindow(byAction[a], RepeatedActionWindow); n > worst.Count {
			worst = ActionBurst{Action: a, Count: n}
		}
	}
	return worst, worst.Count > 0
}

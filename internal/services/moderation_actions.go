package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
)

// Action is one moderation request. The set of implementations is closed; Dispatch
// switches over every one of them.
type Action interface {
	Type() models.ActionType
	Target() string
	validate() map[string]string
}

type ScoreAdjust struct {
	UserID      string
	ScoreChange int64
	Reason      string
}

type Ban struct {
	UserID string
	Hours  float64
	Reason string
}

type Unban struct{ UserID, Reason string }
type QuarantineUser struct{ UserID, Reason string }
type UnquarantineUser struct{ UserID, Reason string }
type BlockReports struct{ UserID, Reason string }
type UnblockReports struct{ UserID, Reason string }
type BlockVotes struct{ UserID, Reason string }
type UnblockVotes struct{ UserID, Reason string }
type Reset struct{ UserID, Reason string }
type ForceModeration struct{ UserID, Reason string }
type RemoveModeration struct{ UserID, Reason string }
type RevokeAdmin struct{ UserID, Reason string }

type Note struct {
	UserID   string
	Note     string
	Category string
}

type ReviewSuspicion struct {
	UserID string
	Status models.SuspicionStatus
	Reason string
}

// ResolveReport confirms or denies a report. UserID may be left empty; it is then taken
// from the report.
type ResolveReport struct {
	UserID   string
	ReportID string
	Status   models.ReportStatus
	Reason   string
}

func (a ScoreAdjust) Type() models.ActionType      { return models.ActionScoreAdjust }
func (a Ban) Type() models.ActionType              { return models.ActionBan }
func (a Unban) Type() models.ActionType            { return models.ActionUnban }
func (a QuarantineUser) Type() models.ActionType   { return models.ActionQuarantine }
func (a UnquarantineUser) Type() models.ActionType { return models.ActionUnquarantine }
func (a BlockReports) Type() models.ActionType     { return models.ActionBlockReports }
func (a UnblockReports) Type() models.ActionType   { return models.ActionUnblockReports }
func (a BlockVotes) Type() models.ActionType       { return models.ActionBlockVotes }
func (a UnblockVotes) Type() models.ActionType     { return models.ActionUnblockVotes }
func (a Reset) Type() models.ActionType            { return models.ActionReset }
func (a ForceModeration) Type() models.ActionType  { return models.ActionForceModeration }
func (a RemoveModeration) Type() models.ActionType { return models.ActionRemoveModeration }
func (a RevokeAdmin) Type() models.ActionType      { return models.ActionRevokeAdmin }
func (a Note) Type() models.ActionType             { return models.ActionNote }
func (a ReviewSuspicion) Type() models.ActionType  { return models.ActionReviewSuspicion }
func (a ResolveReport) Type() models.ActionType    { return models.ActionResolveReport }

func (a ScoreAdjust) Target() string      { return a.UserID }
func (a Ban) Target() string              { return a.UserID }
func (a Unban) Target() string            { return a.UserID }
func (a QuarantineUser) Target() string   { return a.UserID }
func (a UnquarantineUser) Target() string { return a.UserID }
func (a BlockReports) Target() string     { return a.UserID }
func (a UnblockReports) Target() string   { return a.UserID }
func (a BlockVotes) Target() string       { return a.UserID }
func (a UnblockVotes) Target() string     { return a.UserID }
func (a Reset) Target() string            { return a.UserID }
func (a ForceModeration) Target() string  { return a.UserID }
func (a RemoveModeration) Target() string { return a.UserID }
func (a RevokeAdmin) Target() string      { return a.UserID }
func (a Note) Target() string             { return a.UserID }
func (a ReviewSuspicion) Target() string  { return a.UserID }
func (a ResolveReport) Target() string    { return a.UserID }

func requireTargetAndReason(userID, reason string) map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(userID) == "" {
		errors["userId"] = "User ID is required"
	}
	if strings.TrimSpace(reason) == "" {
		errors["reason"] = "Reason is required"
	}
	return errors
}

func (a ScoreAdjust) validate() map[string]string {
	errors := requireTargetAndReason(a.UserID, a.Reason)
	if a.ScoreChange == 0 {
		errors["scoreChange"] = "Score change must be a non-zero integer"
	}
	return errors
}

func (a Ban) validate() map[string]string {
	errors := requireTargetAndReason(a.UserID, a.Reason)
	if math.IsNaN(a.Hours) || a.Hours <= 0 {
		errors["hours"] = "Ban duration must be positive"
	} else if a.Hours > maxBanHours {
		errors["hours"] = "Ban duration is too long"
	}
	return errors
}

func (a Unban) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a QuarantineUser) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a UnquarantineUser) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a BlockReports) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a UnblockReports) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a BlockVotes) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a UnblockVotes) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a Reset) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a ForceModeration) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a RemoveModeration) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a RevokeAdmin) validate() map[string]string {
	return requireTargetAndReason(a.UserID, a.Reason)
}

func (a Note) validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(a.UserID) == "" {
		errors["userId"] = "User ID is required"
	}
	if strings.TrimSpace(a.Note) == "" {
		errors["note"] = "Note is required"
	}
	return errors
}

func (a ReviewSuspicion) validate() map[string]string {
	errors := requireTargetAndReason(a.UserID, a.Reason)
	if !models.IsReviewDecision(a.Status) {
		errors["status"] = "Status must be reviewed or dismissed"
	}
	return errors
}

func (a ResolveReport) validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(a.ReportID) == "" {
		errors["reportId"] = "Report ID is required"
	}
	if !models.IsReportDecision(a.Status) {
		errors["status"] = "Status must be confirmed or denied"
	}
	return errors
}

// Outcome is what a dispatched action produced. At most one of Reputation, Note,
// Suspicion or Report is set; revokeAdmin sets none.
type Outcome struct {
	Action     models.AdminAction        `json:"action"`
	Reputation *models.UserReputation    `json:"reputation,omitempty"`
	Note       *models.AdminNote         `json:"note,omitempty"`
	Suspicion  *models.SuspiciousAccount `json:"suspicion,omitempty"`
	Report     *models.Report            `json:"report,omitempty"`
}

// ModerationActions is the single entry point for state-changing moderation requests:
// authorize, validate, mutate, then append exactly one admin_actions entry.
type ModerationActions struct {
	Admins     *AdminDirectory
	Reputation *ReputationService
	Audit      *AuditLog
	Suspicion  *SuspicionService
	Reports    *ReportService
}

func NewModerationActions(admins *AdminDirectory, rep *ReputationService, audit *AuditLog, suspicion *SuspicionService, reports *ReportService) *ModerationActions {
	return &ModerationActions{Admins: admins, Reputation: rep, Audit: audit, Suspicion: suspicion, Reports: reports}
}

// Dispatch runs one action for actor. Authorization and validation failures happen
// before any write. When the mutation commits but the audit append fails, the outcome is
// returned together with an error wrapping ErrAuditIncomplete.
func (m *ModerationActions) Dispatch(ctx context.Context, actor Principal, action Action) (*Outcome, error) {
	if action == nil {
		return nil, NewValidationError("type", "Action is required")
	}
	log := zap.S().With("adminId", actor.UID, "userId", action.Target(), "action", action.Type())

	if err := m.Admins.Authorize(ctx, actor); err != nil {
		log.Warnw("moderation action rejected", "error", err)
		return nil, err
	}
	if fields := action.validate(); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	out, reason, meta, err := m.apply(ctx, actor, action)
	if err != nil {
		log.Errorw("moderation action failed", "error", err)
		return nil, err
	}

	target := action.Target()
	if target == "" && out.Report != nil {
		target = out.Report.UserID
	}
	entry := models.AdminAction{
		TargetUserID: target,
		AdminID:      actor.UID,
		ActionType:   action.Type(),
		Reason:       reason,
		Metadata:     meta,
		Timestamp:    m.Reputation.Now().UTC(),
	}
	id, err := m.Audit.Append(ctx, entry)
	out.Action = entry
	if err != nil {
		log.Warnw("moderation action applied without audit entry",
			"error", err, "reason", reason, "metadata", meta)
		return out, errors.Join(ErrAuditIncomplete, err)
	}
	out.Action.ID = id

	log.Infow("moderation action applied", "reason", reason)
	return out, nil
}

func (m *ModerationActions) apply(ctx context.Context, actor Principal, action Action) (*Outcome, string, map[string]interface{}, error) {
	rep := m.Reputation
	var (
		mut  Mutation
		err  error
		meta = map[string]interface{}{}
	)

	switch a := action.(type) {
	case ScoreAdjust:
		mut, err = rep.AdjustScore(ctx, a.UserID, a.ScoreChange)
		meta["scoreChange"] = a.ScoreChange
		meta["appliedChange"] = mut.ScoreDelta()
		meta["newScore"] = mut.After.Score
	case Ban:
		mut, err = rep.Ban(ctx, a.UserID, a.Hours, a.Reason)
		meta["durationHours"] = a.Hours
		meta["isPermanent"] = a.Hours >= models.PermanentBanHours
		if until := mut.After.Restrictions.BannedUntil; until != nil {
			meta["bannedUntil"] = until.UTC().Format(time.RFC3339)
		}
		meta["scoreChange"] = mut.ScoreDelta()
	case Unban:
		mut, err = rep.Unban(ctx, a.UserID)
		meta["scoreBonus"] = mut.ScoreDelta()
	case QuarantineUser:
		mut, err = rep.Quarantine(ctx, a.UserID)
		meta["scoreChange"] = mut.ScoreDelta()
	case UnquarantineUser:
		mut, err = rep.Unquarantine(ctx, a.UserID)
	case BlockReports:
		mut, err = rep.BlockReports(ctx, a.UserID)
	case UnblockReports:
		mut, err = rep.UnblockReports(ctx, a.UserID)
	case BlockVotes:
		mut, err = rep.BlockVotes(ctx, a.UserID)
	case UnblockVotes:
		mut, err = rep.UnblockVotes(ctx, a.UserID)
	case Reset:
		mut, err = rep.Reset(ctx, a.UserID)
		meta["previousScore"] = mut.Before.Score
	case ForceModeration:
		mut, err = rep.SetForcedModeration(ctx, a.UserID, true)
	case RemoveModeration:
		mut, err = rep.SetForcedModeration(ctx, a.UserID, false)

	case Note:
		note, err := m.Audit.AddNote(ctx, models.AdminNote{
			UserID:   a.UserID,
			AdminID:  actor.UID,
			Note:     a.Note,
			Category: a.Category,
		})
		if err != nil {
			return nil, "", nil, err
		}
		meta["length"] = len([]rune(a.Note))
		meta["noteId"] = note.ID
		return &Outcome{Note: &note}, "Note added: " + note.Category, meta, nil

	case RevokeAdmin:
		if a.UserID == actor.UID {
			return nil, "", nil, NewValidationError("userId", "Admins cannot revoke their own privilege")
		}
		previous, err := m.Admins.SetAdmin(ctx, a.UserID, false)
		if err != nil {
			return nil, "", nil, err
		}
		meta["previousIsAdmin"] = previous
		return &Outcome{}, a.Reason, meta, nil

	case ReviewSuspicion:
		if m.Suspicion == nil {
			return nil, "", nil, NewValidationError("type", "Suspicion review is not available")
		}
		acct, err := m.Suspicion.SetStatus(ctx, a.UserID, a.Status)
		if err != nil {
			return nil, "", nil, err
		}
		meta["status"] = string(a.Status)
		meta["suspicionLevel"] = acct.SuspicionLevel
		return &Outcome{Suspicion: &acct}, a.Reason, meta, nil

	case ResolveReport:
		if m.Reports == nil {
			return nil, "", nil, NewValidationError("type", "Report review is not available")
		}
		if a.UserID != "" {
			current, err := m.Reports.Get(ctx, a.ReportID)
			if err != nil {
				return nil, "", nil, err
			}
			if current.UserID != a.UserID {
				return nil, "", nil, NewValidationError("reportId", "Report was not filed by this user")
			}
		}
		report, changed, err := m.Reports.Resolve(ctx, a.ReportID, a.Status, actor.UID)
		if err != nil {
			return nil, "", nil, err
		}
		meta["reportId"] = report.ID
		meta["status"] = string(a.Status)
		meta["changed"] = changed
		meta["validationCounted"] = report.ValidationCounted
		reason := a.Reason
		if strings.TrimSpace(reason) == "" {
			reason = "Report " + string(a.Status)
		}
		return &Outcome{Report: &report}, reason, meta, nil

	default:
		return nil, "", nil, NewValidationError("type", "Unsupported action")
	}

	if err != nil {
		return nil, "", nil, err
	}
	if mut.After.Score != mut.Before.Score {
		meta["previousScore"] = mut.Before.Score
		meta["newScore"] = mut.After.Score
	}
	after := mut.After
	return &Outcome{Reputation: &after}, reasonOf(action), meta, nil
}

func reasonOf(action Action) string {
	switch a := action.(type) {
	case ScoreAdjust:
		return a.Reason
	case Ban:
		return a.Reason
	case Unban:
		return a.Reason
	case QuarantineUser:
		return a.Reason
	case UnquarantineUser:
		return a.Reason
	case BlockReports:
		return a.Reason
	case UnblockReports:
		return a.Reason
	case BlockVotes:
		return a.Reason
	case UnblockVotes:
		return a.Reason
	case Reset:
		return a.Reason
	case ForceModeration:
		return a.Reason
	case RemoveModeration:
		return a.Reason
	case RevokeAdmin:
		return a.Reason
	case ReviewSuspicion:
		return a.Reason
	}
	return ""
}

// ActionRequest is the untyped form used by HTTP and the CLI.
type ActionRequest struct {
	Type        string  `json:"type"`
	Reason      string  `json:"reason"`
	ScoreChange int64   `json:"scoreChange"`
	Hours       float64 `json:"hours"`
	Note        string  `json:"note"`
	Category    string  `json:"category"`
	Status      string  `json:"status"`
	ReportID    string  `json:"reportId"`
}

// ToAction builds the typed action for userID.
func (r ActionRequest) ToAction(userID string) (Action, error) {
	t, ok := models.ParseActionType(r.Type)
	if !ok {
		return nil, NewValidationError("type", "Unknown action type "+r.Type)
	}
	switch t {
	case models.ActionScoreAdjust:
		return ScoreAdjust{UserID: userID, ScoreChange: r.ScoreChange, Reason: r.Reason}, nil
	case models.ActionBan:
		return Ban{UserID: userID, Hours: r.Hours, Reason: r.Reason}, nil
	case models.ActionUnban:
		return Unban{UserID: userID, Reason: r.Reason}, nil
	case models.ActionQuarantine:
		return QuarantineUser{UserID: userID, Reason: r.Reason}, nil
	case models.ActionUnquarantine:
		return UnquarantineUser{UserID: userID, Reason: r.Reason}, nil
	case models.ActionBlockReports:
		return BlockReports{UserID: userID, Reason: r.Reason}, nil
	case models.ActionUnblockReports:
		return UnblockReports{UserID: userID, Reason: r.Reason}, nil
	case models.ActionBlockVotes:
		return BlockVotes{UserID: userID, Reason: r.Reason}, nil
	case models.ActionUnblockVotes:
		return UnblockVotes{UserID: userID, Reason: r.Reason}, nil
	case models.ActionReset:
		return Reset{UserID: userID, Reason: r.Reason}, nil
	case models.ActionNote:
		return Note{UserID: userID, Note: r.Note, Category: r.Category}, nil
	case models.ActionForceModeration:
		return ForceModeration{UserID: userID, Reason: r.Reason}, nil
	case models.ActionRemoveModeration:
		return RemoveModeration{UserID: userID, Reason: r.Reason}, nil
	case models.ActionRevokeAdmin:
		return RevokeAdmin{UserID: userID, Reason: r.Reason}, nil
	case models.ActionReviewSuspicion:
		return ReviewSuspicion{UserID: userID, Status: models.SuspicionStatus(r.Status), Reason: r.Reason}, nil
	case models.ActionResolveReport:
		return ResolveReport{UserID: userID, ReportID: r.ReportID, Status: models.ReportStatus(r.Status), Reason: r.Reason}, nil
	}
	return nil, NewValidationError("type", "Unknown action type "+r.Type)
}

func (m *ModerationActions) AdjustUserScore(ctx context.Context, actor Principal, userID string, scoreChange int64, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, ScoreAdjust{UserID: userID, ScoreChange: scoreChange, Reason: reason})
}

func (m *ModerationActions) BanUser(ctx context.Context, actor Principal, userID string, hours float64, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, Ban{UserID: userID, Hours: hours, Reason: reason})
}

func (m *ModerationActions) UnbanUser(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, Unban{UserID: userID, Reason: reason})
}

func (m *ModerationActions) QuarantineUser(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, QuarantineUser{UserID: userID, Reason: reason})
}

func (m *ModerationActions) UnquarantineUser(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, UnquarantineUser{UserID: userID, Reason: reason})
}

func (m *ModerationActions) BlockUserReports(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, BlockReports{UserID: userID, Reason: reason})
}

func (m *ModerationActions) UnblockUserReports(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, UnblockReports{UserID: userID, Reason: reason})
}

func (m *ModerationActions) BlockUserVotes(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, BlockVotes{UserID: userID, Reason: reason})
}

func (m *ModerationActions) UnblockUserVotes(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, UnblockVotes{UserID: userID, Reason: reason})
}

func (m *ModerationActions) ResetUserReputation(ctx context.Context, actor Principal, userID, reason string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, Reset{UserID: userID, Reason: reason})
}

func (m *ModerationActions) AddAdminNote(ctx context.Context, actor Principal, userID, note, category string) (*Outcome, error) {
	return m.Dispatch(ctx, actor, Note{UserID: userID, Note: note, Category: category})
}

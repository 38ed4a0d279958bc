package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

// reportWindow is how many of the newest reports a listing looks at.
const reportWindow = 500

// ReportFilter narrows List. Zero values match everything.
type ReportFilter struct {
	Status models.ReportStatus
	UserID string
	Limit  int
}

// ReportService is the queue of user-submitted reports. Confirming a report credits the
// reporter's validatedReports once.
type ReportService struct {
	store store.DocumentStore
	rep   *ReputationService
}

func NewReportService(ds store.DocumentStore, rep *ReputationService) *ReportService {
	return &ReportService{store: ds, rep: rep}
}

func (s *ReportService) Get(ctx context.Context, reportID string) (models.Report, error) {
	if reportID == "" {
		return models.Report{}, NewValidationError("reportId", "Report ID is required")
	}
	doc, err := s.store.Get(ctx, store.CollectionReports, reportID)
	if errors.Is(err, store.ErrNoDocument) {
		return models.Report{}, ErrNotFound
	}
	if err != nil {
		return models.Report{}, storeErr("load report", err)
	}
	return models.ReportFromDoc(reportID, doc), nil
}

// List returns the newest reports matching f, newest first. Status and reporter are
// matched after the read because legacy documents carry neither "status" nor "userId".
func (s *ReportService) List(ctx context.Context, f ReportFilter) ([]models.Report, error) {
	snaps, err := s.store.Query(ctx, store.CollectionReports, store.Query{
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      reportWindow,
	})
	if err != nil {
		return nil, storeErr("list reports", err)
	}

	out := make([]models.Report, 0, len(snaps))
	for _, snap := range snaps {
		r := models.ReportFromDoc(snap.ID, snap.Data)
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// StatusCounts counts the listing window by status. Every status is present.
func (s *ReportService) StatusCounts(ctx context.Context) (map[models.ReportStatus]int, error) {
	all, err := s.List(ctx, ReportFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[models.ReportStatus]int, len(models.ReportStatuses))
	for _, st := range models.ReportStatuses {
		counts[st] = 0
	}
	for _, r := range all {
		counts[r.Status]++
	}
	return counts, nil
}

// Resolve confirms or denies a report. Setting the status it already has changes nothing.
// The first confirmation bumps the reporter's validatedReports in the same transaction.
func (s *ReportService) Resolve(ctx context.Context, reportID string, status models.ReportStatus, adminID string) (models.Report, bool, error) {
	if reportID == "" {
		return models.Report{}, false, NewValidationError("reportId", "Report ID is required")
	}
	if !models.IsReportDecision(status) {
		return models.Report{}, false, NewValidationError("status", "Status must be confirmed or denied")
	}

	var (
		out     models.Report
		changed bool
	)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		changed = false
		doc, err := tx.Get(store.CollectionReports, reportID)
		if errors.Is(err, store.ErrNoDocument) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out = models.ReportFromDoc(reportID, doc)

		credit := status == models.ReportConfirmed && !out.ValidationCounted && out.UserID != ""
		var reporter models.UserReputation
		if credit {
			repDoc, err := tx.Get(store.CollectionUserReputation, out.UserID)
			if err != nil && !errors.Is(err, store.ErrNoDocument) {
				return err
			}
			reporter = models.ReputationFromDoc(out.UserID, repDoc)
		}
		if out.Status == status {
			return nil
		}

		write := store.Doc{
			"status":     string(status),
			"resolvedAt": store.ServerTimestamp,
			"resolvedBy": adminID,
		}
		if credit {
			write["validationCounted"] = true
		}
		if err := tx.Merge(store.CollectionReports, reportID, write); err != nil {
			return err
		}
		if credit {
			next := reporter.Counter(models.CounterValidatedReports) + 1
			if err := tx.Merge(store.CollectionUserReputation, out.UserID, store.Doc{
				string(models.CounterValidatedReports): next,
			}); err != nil {
				return err
			}
			out.ValidationCounted = true
		}
		out.Status = status
		out.ResolvedBy = adminID
		now := s.rep.Now().UTC()
		out.ResolvedAt = &now
		changed = true
		return nil
	})
	if out.UserID != "" {
		s.rep.cache.Invalidate(out.UserID)
	}
	if errors.Is(err, ErrNotFound) {
		return models.Report{}, false, ErrNotFound
	}
	if err != nil {
		return models.Report{}, false, storeErr("resolve report", err)
	}
	if changed {
		zap.S().Infow("report resolved", "reportId", reportID, "status", status,
			"userId", out.UserID, "adminId", adminID, "validationCounted", out.ValidationCounted)
	}
	return out, changed, nil
}

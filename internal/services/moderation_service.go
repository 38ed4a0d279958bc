package services

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
)

// ScanResult is the outcome of one automated content check.
type ScanResult struct {
	URI        string           `json:"uri"`
	UserID     string           `json:"userId"`
	Unsafe     bool             `json:"unsafe"`
	Categories []string         `json:"categories"`
	SafeSearch SafeSearchResult `json:"safeSearch"`
}

// ModerationService turns reported media into reputation counters. It is an automated
// signal only: it bumps violationCount and flaggedReports and never restricts a user.
type ModerationService struct {
	gcs        *storage.Client
	detect     SafeSearchDetector
	reputation *ReputationService
}

// NewModerationService takes an optional storage client used to read uploader metadata
// and tag scanned objects.
func NewModerationService(gcs *storage.Client, rep *ReputationService) *ModerationService {
	return &ModerationService{gcs: gcs, detect: DetectSafeSearch, reputation: rep}
}

// SetDetector replaces the Vision call.
func (m *ModerationService) SetDetector(d SafeSearchDetector) { m.detect = d }

// ParseGCSURI splits gs://bucket/object.
func ParseGCSURI(uri string) (bucket, name string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", NewValidationError("uri", "Media URI must start with gs://")
	}
	bucket, name, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return "", "", NewValidationError("uri", "Media URI must name a bucket and an object")
	}
	return bucket, name, nil
}

// ScanReportedMedia runs SafeSearch on gcsURI. When userID is empty the uploader is read
// from the object's "userId" metadata.
func (m *ModerationService) ScanReportedMedia(ctx context.Context, userID, gcsURI string) (*ScanResult, error) {
	bucket, name, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = m.objectOwner(ctx, bucket, name)
	}

	ss, err := m.detect(ctx, gcsURI)
	if err != nil {
		zap.S().Errorw("safesearch failed", "uri", gcsURI, "error", err)
		return nil, fmt.Errorf("moderation: safesearch: %w", err)
	}

	res := &ScanResult{
		URI:        gcsURI,
		UserID:     userID,
		Unsafe:     ss.IsUnsafe(),
		Categories: ss.UnsafeCategories(),
		SafeSearch: *ss,
	}
	zap.S().Infow("safesearch result", "uri", gcsURI, "userId", userID,
		"adult", ss.Adult, "violence", ss.Violence, "racy", ss.Racy, "unsafe", res.Unsafe)

	verdict := "clear"
	if res.Unsafe {
		verdict = "flagged"
		if userID == "" {
			zap.S().Warnw("unsafe media has no uploader; counters not recorded", "uri", gcsURI)
		} else {
			err := m.reputation.RecordCounters(ctx, userID, map[models.Counter]int64{
				models.CounterViolationCount: 1,
				models.CounterFlaggedReports: 1,
			})
			if err != nil {
				return res, err
			}
		}
	}
	m.tagObject(ctx, bucket, name, verdict)
	return res, nil
}

func (m *ModerationService) objectOwner(ctx context.Context, bucket, name string) string {
	if m.gcs == nil {
		return ""
	}
	attrs, err := m.gcs.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		zap.S().Warnw("object attrs unavailable", "bucket", bucket, "name", name, "error", err)
		return ""
	}
	return attrs.Metadata["userId"]
}

func (m *ModerationService) tagObject(ctx context.Context, bucket, name, verdict string) {
	if m.gcs == nil {
		return
	}
	obj := m.gcs.Bucket(bucket).Object(name)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		zap.S().Warnw("tag object: attrs failed", "bucket", bucket, "name", name, "error", err)
		return
	}
	md := map[string]string{}
	for k, v := range attrs.Metadata {
		md[k] = v
	}
	md["moderation"] = verdict
	if _, err := obj.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: md}); err != nil {
		zap.S().Warnw("tag object: update failed", "bucket", bucket, "name", name, "error", err)
	}
}

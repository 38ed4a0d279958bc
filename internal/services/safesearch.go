package services

import (
	"context"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// SafeSearchResult holds Vision likelihood strings (VERY_UNLIKELY .. VERY_LIKELY).
type SafeSearchResult struct {
	Adult    string `json:"adult"`
	Violence string `json:"violence"`
	Racy     string `json:"racy"`
	Spoof    string `json:"spoof"`
	Medical  string `json:"medical"`
}

// SafeSearchDetector annotates the image at a gs:// URI.
type SafeSearchDetector func(ctx context.Context, gcsURI string) (*SafeSearchResult, error)

// DetectSafeSearch calls Vision SAFE_SEARCH_DETECTION with Application Default Credentials.
func DetectSafeSearch(ctx context.Context, gcsURI string) (*SafeSearchResult, error) {
	svc, err := vision.NewService(ctx, option.WithScopes(vision.CloudPlatformScope))
	if err != nil {
		return nil, err
	}

	resp, err := svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Source: &vision.ImageSource{GcsImageUri: gcsURI}},
			Features: []*vision.Feature{{Type: "SAFE_SEARCH_DETECTION"}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 || resp.Responses[0].SafeSearchAnnotation == nil {
		return &SafeSearchResult{}, nil
	}
	ss := resp.Responses[0].SafeSearchAnnotation
	return &SafeSearchResult{
		Adult:    ss.Adult,
		Violence: ss.Violence,
		Racy:     ss.Racy,
		Spoof:    ss.Spoof,
		Medical:  ss.Medical,
	}, nil
}

var likelihoodRank = map[string]int{
	"UNKNOWN":       0,
	"VERY_UNLIKELY": 1,
	"UNLIKELY":      2,
	"POSSIBLE":      3,
	"LIKELY":        4,
	"VERY_LIKELY":   5,
}

func atLeastLikely(l string) bool {
	return likelihoodRank[l] >= likelihoodRank["LIKELY"]
}

// UnsafeCategories lists the categories rated LIKELY or higher. Spoof and medical are
// informational only.
func (r *SafeSearchResult) UnsafeCategories() []string {
	out := make([]string, 0, 3)
	if atLeastLikely(r.Adult) {
		out = append(out, "adult")
	}
	if atLeastLikely(r.Violence) {
		out = append(out, "violence")
	}
	if atLeastLikely(r.Racy) {
		out = append(out, "racy")
	}
	return out
}

func (r *SafeSearchResult) IsUnsafe() bool {
	return len(r.UnsafeCategories()) > 0
}

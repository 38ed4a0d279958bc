package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/services"
)

// reportedPrefix is where the app copies media attached to a user report.
const reportedPrefix = "reported/"

// Eventarc delivers CloudEvents; for GCS finalized events the body contains object info.
type gcsFinalizeEvent struct {
	Bucket   string            `json:"bucket"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// cloudEventEnvelope handles Eventarc structured content mode where the GCS
// payload is nested inside a "data" field.
type cloudEventEnvelope struct {
	Data gcsFinalizeEvent `json:"data"`
}

type worker struct {
	moderation *services.ModerationService
	// bucket, when set, restricts processing to one bucket.
	bucket string
	prefix string
}

func parseFinalizeEvent(raw []byte) (gcsFinalizeEvent, error) {
	var ev gcsFinalizeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, err
	}
	if ev.Bucket == "" || ev.Name == "" {
		var envelope cloudEventEnvelope
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data.Bucket != "" && envelope.Data.Name != "" {
			ev = envelope.Data
		}
	}
	return ev, nil
}

func (wk *worker) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	log := zap.S().With("ceType", r.Header.Get("Ce-Type"), "ceSubject", r.Header.Get("Ce-Subject"))

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warnw("failed to read event body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ev, err := parseFinalizeEvent(raw)
	if err != nil {
		log.Warnw("failed to decode event body", "error", err, "bytes", len(raw))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Acknowledge events this worker does not handle so Eventarc stops retrying them.
	if ev.Bucket == "" || ev.Name == "" {
		log.Infow("skipping event without bucket or name")
		w.WriteHeader(http.StatusOK)
		return
	}
	if (wk.bucket != "" && ev.Bucket != wk.bucket) || !strings.HasPrefix(ev.Name, wk.prefix) {
		log.Debugw("skipping object outside reported media", "bucket", ev.Bucket, "name", ev.Name)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	gcsURI := fmt.Sprintf("gs://%s/%s", ev.Bucket, ev.Name)
	res, err := wk.moderation.ScanReportedMedia(ctx, ev.Metadata["userId"], gcsURI)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			log.Warnw("unprocessable media event", "uri", gcsURI, "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		// Eventarc retries on 5xx.
		log.Errorw("media scan failed", "uri", gcsURI, "error", err)
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}

	log.Infow("media scanned", "uri", gcsURI, "userId", res.UserID, "unsafe", res.Unsafe, "categories", res.Categories)
	w.WriteHeader(http.StatusOK)
}

package app

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/config"
	"github.com/muso/admin-backend/internal/middleware"
	"github.com/muso/admin-backend/internal/services"
	"github.com/muso/admin-backend/internal/store"
)

// App holds the wired services shared by the server, the worker and modctl.
type App struct {
	Config     *config.Config
	Store      store.DocumentStore
	Reputation *services.ReputationService
	Admins     *services.AdminDirectory
	Audit      *services.AuditLog
	Suspicion  *services.SuspicionService
	Reports    *services.ReportService
	Actions    *services.ModerationActions
	Moderation *services.ModerationService
	AuthClient *fbauth.Client
}

type Options struct {
	// WithAuth creates the Firebase Auth client used to verify console ID tokens.
	WithAuth bool
	// WithMedia creates a Cloud Storage client for reported media.
	WithMedia bool
}

// Build opens the configured document store and wires every service on top of it.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	var fbApp *firebase.App
	if cfg.StoreBackend == config.BackendFirestore || opts.WithAuth {
		var err error
		fbApp, err = middleware.NewFirebaseApp(ctx, middleware.FirebaseConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("firebase app: %w", err)
		}
	}

	ds, err := OpenStore(ctx, cfg, fbApp)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: ds}
	if opts.WithAuth && fbApp != nil {
		client, err := middleware.NewFirebaseAuthClient(ctx, fbApp)
		if err != nil {
			zap.S().Warnw("firebase auth unavailable", "error", err)
		} else {
			a.AuthClient = client
		}
	}

	var gcsClient *gcs.Client
	if opts.WithMedia {
		gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			zap.S().Warnw("cloud storage unavailable; media metadata will not be read", "error", err)
			gcsClient = nil
		}
	}

	a.Reputation = services.NewReputationService(ds, services.NewUserCache(cfg.CacheSize, cfg.CacheTTL))
	a.Admins = services.NewAdminDirectory(ds, cfg.AdminEmails)
	a.Audit = services.NewAuditLog(ds)

	var notifier services.ReviewNotifier
	if m := services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.ReviewFromEmail, cfg.ReviewToEmail); m != nil {
		notifier = m
	}
	a.Suspicion = services.NewSuspicionService(ds, notifier)
	a.Reports = services.NewReportService(ds, a.Reputation)
	a.Actions = services.NewModerationActions(a.Admins, a.Reputation, a.Audit, a.Suspicion, a.Reports)
	a.Moderation = services.NewModerationService(gcsClient, a.Reputation)
	return a, nil
}

// OpenStore selects the document store backend named in cfg.
func OpenStore(ctx context.Context, cfg *config.Config, fbApp *firebase.App) (store.DocumentStore, error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		if fbApp == nil {
			return nil, fmt.Errorf("firestore backend needs a firebase app")
		}
		ds, err := store.NewFirestoreStore(ctx, fbApp)
		if err != nil {
			return nil, fmt.Errorf("firestore: %w", err)
		}
		zap.S().Infow("document store ready", "backend", cfg.StoreBackend, "project", cfg.FirebaseProjectID)
		return ds, nil
	case config.BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required for the mongo backend")
		}
		ds, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		zap.S().Infow("document store ready", "backend", cfg.StoreBackend, "db", cfg.MongoDB)
		return ds, nil
	case config.BackendMemory:
		ds, err := store.OpenMemoryStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		zap.S().Infow("document store ready", "backend", cfg.StoreBackend, "dataDir", cfg.DataDir)
		return ds, nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

func (a *App) Close() error {
	return a.Store.Close()
}

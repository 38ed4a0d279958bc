package middleware

import (
	"context"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

type FirebaseConfig struct {
	ProjectID       string
	CredentialsJSON string
}

// NewFirebaseApp uses inline credentials when given, Application Default Credentials
// otherwise.
func NewFirebaseApp(ctx context.Context, cfg FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	var conf *firebase.Config
	if cfg.ProjectID != "" {
		conf = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	return firebase.NewApp(ctx, conf, opts...)
}

func NewFirebaseAuthClient(ctx context.Context, app *firebase.App) (*fbauth.Client, error) {
	return app.Auth(ctx)
}

package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/store"
)

// Principal is the verified identity behind a request. A zero UID means unauthenticated.
type Principal struct {
	UID   string
	Email string
}

// AdminDirectory answers who may act as an administrator. The email allow-list is the
// outer gate; users/{uid}.isAdmin is read fresh on every check so a revocation applies
// to the very next action.
type AdminDirectory struct {
	store store.DocumentStore
	allow map[string]bool
}

func NewAdminDirectory(ds store.DocumentStore, allowList []string) *AdminDirectory {
	allow := make(map[string]bool, len(allowList))
	for _, e := range allowList {
		if e = normalizeEmail(e); e != "" {
			allow[e] = true
		}
	}
	return &AdminDirectory{store: ds, allow: allow}
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func (d *AdminDirectory) AllowListed(email string) bool {
	return d.allow[normalizeEmail(email)]
}

// Authorize returns nil when p may perform admin actions right now.
func (d *AdminDirectory) Authorize(ctx context.Context, p Principal) error {
	if p.UID == "" {
		return ErrUnauthenticated
	}
	if !d.AllowListed(p.Email) {
		return ErrPermissionDenied
	}
	doc, err := d.store.Get(ctx, store.CollectionUsers, p.UID)
	if errors.Is(err, store.ErrNoDocument) {
		return ErrPermissionDenied
	}
	if err != nil {
		return storeErr("check admin", err)
	}
	if !store.Bool(doc, "isAdmin", false) {
		return ErrPermissionDenied
	}
	return nil
}

// EnsureAdminProfile runs at sign-in. An allow-listed admin with no profile yet gets one
// with isAdmin set. A profile whose flag was revoked stays revoked.
func (d *AdminDirectory) EnsureAdminProfile(ctx context.Context, p Principal) (models.Session, error) {
	if p.UID == "" {
		return models.Session{}, ErrUnauthenticated
	}
	if !d.AllowListed(p.Email) {
		return models.Session{}, ErrPermissionDenied
	}

	doc, err := d.store.Get(ctx, store.CollectionUsers, p.UID)
	if err != nil && !errors.Is(err, store.ErrNoDocument) {
		return models.Session{}, storeErr("load profile", err)
	}

	bootstrapped := false
	if doc == nil {
		username := p.Email
		if i := strings.Index(username, "@"); i > 0 {
			username = username[:i]
		}
		err = d.store.Set(ctx, store.CollectionUsers, p.UID, store.Doc{
			"email":      p.Email,
			"username":   username,
			"isAdmin":    true,
			"createdAt":  store.ServerTimestamp,
			"adminSince": store.ServerTimestamp,
			"lastLogin":  store.ServerTimestamp,
		})
		bootstrapped = true
		zap.S().Infow("admin profile bootstrapped", "adminId", p.UID, "email", p.Email)
	} else {
		if !store.Bool(doc, "isAdmin", false) {
			return models.Session{}, ErrPermissionDenied
		}
		err = d.store.Merge(ctx, store.CollectionUsers, p.UID, store.Doc{"lastLogin": store.ServerTimestamp})
	}
	if err != nil {
		return models.Session{}, storeErr("save profile", err)
	}

	profile, err := d.Profile(ctx, p.UID)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Profile: profile, Bootstrapped: bootstrapped}, nil
}

func (d *AdminDirectory) Profile(ctx context.Context, uid string) (models.UserProfile, error) {
	doc, err := d.store.Get(ctx, store.CollectionUsers, uid)
	if errors.Is(err, store.ErrNoDocument) {
		return models.UserProfile{}, ErrNotFound
	}
	if err != nil {
		return models.UserProfile{}, storeErr("load profile", err)
	}
	return models.UserProfileFromDoc(uid, doc), nil
}

// SetAdmin flips users/{uid}.isAdmin and returns the previous value.
func (d *AdminDirectory) SetAdmin(ctx context.Context, uid string, isAdmin bool) (bool, error) {
	var previous bool
	err := d.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(store.CollectionUsers, uid)
		if errors.Is(err, store.ErrNoDocument) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		previous = store.Bool(doc, "isAdmin", false)
		update := store.Doc{"isAdmin": isAdmin}
		if isAdmin && !previous {
			update["adminSince"] = store.ServerTimestamp
		}
		if !isAdmin {
			update["adminSince"] = store.Delete
		}
		return tx.Merge(store.CollectionUsers, uid, update)
	})
	if errors.Is(err, ErrNotFound) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, storeErr("set admin", err)
	}
	return previous, nil
}

// ListAdmins returns profiles with isAdmin set, ordered by email.
func (d *AdminDirectory) ListAdmins(ctx context.Context) ([]models.UserProfile, error) {
	snaps, err := d.store.Query(ctx, store.CollectionUsers, store.Query{
		Filters: []store.Filter{{Field: "isAdmin", Op: store.OpEqual, Value: true}},
	})
	if err != nil {
		return nil, storeErr("list admins", err)
	}
	out := make([]models.UserProfile, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, models.UserProfileFromDoc(snap.ID, snap.Data))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

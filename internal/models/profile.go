package models

import (
	"time"

	"github.com/muso/admin-backend/internal/store"
)

// UserProfile is the subset of users/{uid} the console reads. The mobile app owns the rest.
type UserProfile struct {
	UserID     string     `json:"userId"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	IsAdmin    bool       `json:"isAdmin"`
	AdminSince *time.Time `json:"adminSince,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
}

func UserProfileFromDoc(id string, doc store.Doc) UserProfile {
	p := UserProfile{
		UserID:   id,
		Email:    store.String(doc, "email"),
		Username: store.String(doc, "username"),
		IsAdmin:  store.Bool(doc, "isAdmin", false),
	}
	if t, ok := store.Time(doc, "createdAt"); ok {
		p.CreatedAt = t
	}
	if t, ok := store.Time(doc, "adminSince"); ok {
		p.AdminSince = &t
	}
	if t, ok := store.Time(doc, "lastLogin"); ok {
		p.LastLogin = &t
	}
	return p
}

// Session is returned to the console after sign-in.
type Session struct {
	Profile      UserProfile `json:"profile"`
	Bootstrapped bool        `json:"bootstrapped"`
}

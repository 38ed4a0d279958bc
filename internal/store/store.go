package store

import (
	"context"
	"errors"
)

// Logical collection names shared with the mobile app. Case-sensitive.
const (
	CollectionUsers               = "users"
	CollectionUserReputation      = "user_reputation"
	CollectionAdminActions        = "admin_actions"
	CollectionAdminNotes          = "admin_notes"
	CollectionSuspiciousAccounts  = "suspicious_accounts"
	CollectionDeviceRegistrations = "device_registrations"
	CollectionUserActionsLog      = "user_actions_log"
	CollectionReports             = "report"
)

// ErrNoDocument is returned by Get when the document does not exist.
var ErrNoDocument = errors.New("document not found")

// Doc is a schemaless document body. Nested objects are map[string]interface{}.
type Doc = map[string]interface{}

type sentinel string

const (
	// Delete removes the field it is assigned to in Merge.
	Delete sentinel = "__delete__"
	// ServerTimestamp is replaced by the backend's write time.
	ServerTimestamp sentinel = "__server_timestamp__"
)

// Snapshot is a document returned from a query.
type Snapshot struct {
	ID   string
	Data Doc
}

// Filter operators understood by every backend.
const (
	OpEqual         = "=="
	OpGreaterOrEq   = ">="
	OpLessOrEq      = "<="
	OpArrayContains = "array-contains"
)

type Filter struct {
	Field string
	Op    string
	Value interface{}
}

type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Tx is the view of the store inside RunTransaction. All reads must happen before writes.
type Tx interface {
	Get(collection, id string) (Doc, error)
	Set(collection, id string, doc Doc) error
	Merge(collection, id string, doc Doc) error
}

// DocumentStore is the generic document database the moderation core runs against.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Set(ctx context.Context, collection, id string, doc Doc) error
	Merge(ctx context.Context, collection, id string, doc Doc) error
	Increment(ctx context.Context, collection, id, field string, delta int64) error
	Add(ctx context.Context, collection string, doc Doc) (string, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	// RunTransaction may invoke fn more than once on contention.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

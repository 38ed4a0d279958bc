package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muso/admin-backend/internal/storage"
)

// MemoryStore is an in-process DocumentStore. Transactions are serialised on a single
// lock, which linearises every read-modify-write. It backs tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]map[string]Doc
	now       func() time.Time
	lastStamp time.Time
	persister *storage.JSONStore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]Doc),
		now:  time.Now,
	}
}

// OpenMemoryStore loads a snapshot from dataDir and saves a new one after every write.
func OpenMemoryStore(dataDir string) (*MemoryStore, error) {
	js, err := storage.NewJSONStore(dataDir, "documents.json")
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	if err := js.Load(&s.data); err != nil {
		return nil, fmt.Errorf("memory store: load snapshot: %w", err)
	}
	if s.data == nil {
		s.data = make(map[string]map[string]Doc)
	}
	s.persister = js
	return s, nil
}

// SetClock overrides the time source used for server timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(collection, id)
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked([]memoryWrite{{collection: collection, id: id, doc: doc}})
}

func (s *MemoryStore) Merge(ctx context.Context, collection, id string, doc Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked([]memoryWrite{{collection: collection, id: id, doc: doc, merge: true}})
}

func (s *MemoryStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _ := s.getLocked(collection, id)
	if cur == nil {
		cur = Doc{}
	}
	return s.commitLocked([]memoryWrite{{collection: collection, id: id, doc: Doc{field: Int(cur, field, 0) + delta}, merge: true}})
}

func (s *MemoryStore) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitLocked([]memoryWrite{{collection: collection, id: id, doc: doc}}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked([]memoryWrite{{collection: collection, id: id, remove: true}})
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]Snapshot, 0)
	for id, doc := range s.data[collection] {
		if matchesAll(doc, q.Filters) {
			out = append(out, Snapshot{ID: id, Data: Clone(doc)})
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy == "" {
			return out[i].ID < out[j].ID
		}
		a, _ := Lookup(out[i].Data, q.OrderBy)
		b, _ := Lookup(out[j].Data, q.OrderBy)
		c := compareValues(a, b)
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type memoryWrite struct {
	collection, id string
	doc            Doc
	merge          bool
	remove         bool
}

// memoryUndo is the state of one document before a write.
type memoryUndo struct {
	collection, id string
	prev           Doc
	existed        bool
}

type memoryTx struct {
	s      *MemoryStore
	writes []memoryWrite
}

func (t *memoryTx) Get(collection, id string) (Doc, error) {
	if len(t.writes) > 0 {
		return nil, fmt.Errorf("memory store: read after write in transaction")
	}
	return t.s.getLocked(collection, id)
}

func (t *memoryTx) Set(collection, id string, doc Doc) error {
	t.writes = append(t.writes, memoryWrite{collection: collection, id: id, doc: Clone(doc)})
	return nil
}

func (t *memoryTx) Merge(collection, id string, doc Doc) error {
	t.writes = append(t.writes, memoryWrite{collection: collection, id: id, doc: Clone(doc), merge: true})
	return nil
}

// RunTransaction holds the store lock for the whole of fn. fn must only use tx.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commitLocked(tx.writes)
}

// commitLocked applies writes and saves the snapshot. If the save fails every write is
// undone, so callers never observe a change that was reported as failed.
func (s *MemoryStore) commitLocked(writes []memoryWrite) error {
	stamp := s.stamp()
	undo := make([]memoryUndo, 0, len(writes))
	for _, w := range writes {
		prev, existed := s.data[w.collection][w.id]
		undo = append(undo, memoryUndo{collection: w.collection, id: w.id, prev: Clone(prev), existed: existed})
		switch {
		case w.remove:
			delete(s.data[w.collection], w.id)
		case w.merge:
			s.mergeLocked(w.collection, w.id, w.doc, stamp)
		default:
			s.setLocked(w.collection, w.id, w.doc, stamp)
		}
	}
	if err := s.persistLocked(); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			u := undo[i]
			if u.existed {
				s.data[u.collection][u.id] = u.prev
			} else {
				delete(s.data[u.collection], u.id)
			}
		}
		return fmt.Errorf("memory store: save snapshot: %w", err)
	}
	return nil
}

func (s *MemoryStore) getLocked(collection, id string) (Doc, error) {
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, ErrNoDocument
	}
	return Clone(doc), nil
}

func (s *MemoryStore) setLocked(collection, id string, doc Doc, stamp time.Time) {
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Doc)
	}
	next := Doc{}
	mergeInto(next, doc, stamp)
	s.data[collection][id] = next
}

func (s *MemoryStore) mergeLocked(collection, id string, doc Doc, stamp time.Time) {
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Doc)
	}
	cur, ok := s.data[collection][id]
	if !ok {
		cur = Doc{}
		s.data[collection][id] = cur
	}
	mergeInto(cur, doc, stamp)
}

// stamp returns a strictly increasing write time.
func (s *MemoryStore) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = t
	return t
}

func (s *MemoryStore) persistLocked() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Save(s.data)
}

func mergeInto(dst, src Doc, stamp time.Time) {
	for k, v := range src {
		switch t := v.(type) {
		case sentinel:
			if t == Delete {
				delete(dst, k)
			} else {
				dst[k] = stamp
			}
		case map[string]interface{}:
			child, ok := dst[k].(map[string]interface{})
			if !ok {
				child = Doc{}
				dst[k] = child
			}
			mergeInto(child, t, stamp)
		default:
			dst[k] = cloneValue(v)
		}
	}
}

func matchesAll(doc Doc, filters []Filter) bool {
	for _, f := range filters {
		v, ok := Lookup(doc, f.Field)
		switch f.Op {
		case OpEqual:
			if !ok || compareValues(v, f.Value) != 0 {
				return false
			}
		case OpGreaterOrEq:
			if !ok || compareValues(v, f.Value) < 0 {
				return false
			}
		case OpLessOrEq:
			if !ok || compareValues(v, f.Value) > 0 {
				return false
			}
		case OpArrayContains:
			if !ok || !containsValue(v, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsValue(list, want interface{}) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if compareValues(rv.Index(i).Interface(), want) == 0 {
			return true
		}
	}
	return false
}

// compareValues orders numbers, times, strings and bools; mismatched kinds sort by type name.
func compareValues(a, b interface{}) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	if a == nil && b == nil {
		return 0
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

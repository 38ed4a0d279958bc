package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each logical collection onto a Mongo collection keyed by _id.
// Transactions require a replica set (Atlas clusters qualify).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, mongoURI, dbName string) (*MongoStore, error) {
	// Atlas on Cloud Run fails the handshake above TLS 1.2.
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI).SetTLSConfig(tlsCfg))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	s := &MongoStore{client: client, db: client.Database(dbName)}

	_, _ = s.db.Collection(CollectionAdminActions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	_, _ = s.db.Collection(CollectionSuspiciousAccounts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "suspicionLevel", Value: -1}},
	})
	return s, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	return mongoGet(ctx, s.db.Collection(collection), id)
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, doc Doc) error {
	return mongoSet(ctx, s.db.Collection(collection), id, doc)
}

func (s *MongoStore) Merge(ctx context.Context, collection, id string, doc Doc) error {
	return mongoMerge(ctx, s.db.Collection(collection), id, doc)
}

func (s *MongoStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{field: delta}},
		options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	id := uuid.New().String()
	body := resolveForWrite(doc, time.Now().UTC())
	body["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, body); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	filter, err := mongoFilter(q.Filters)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]Snapshot, 0)
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		doc := normalizeDoc(raw)
		id, _ := doc["_id"].(string)
		delete(doc, "_id")
		out = append(out, Snapshot{ID: id, Data: doc})
	}
	return out, cur.Err()
}

type mongoTx struct {
	ctx mongo.SessionContext
	db  *mongo.Database
}

func (t *mongoTx) Get(collection, id string) (Doc, error) {
	return mongoGet(t.ctx, t.db.Collection(collection), id)
}

func (t *mongoTx) Set(collection, id string, doc Doc) error {
	return mongoSet(t.ctx, t.db.Collection(collection), id, doc)
}

func (t *mongoTx) Merge(collection, id string, doc Doc) error {
	return mongoMerge(t.ctx, t.db.Collection(collection), id, doc)
}

func (s *MongoStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{ctx: sc, db: s.db})
	})
	return err
}

func mongoGet(ctx context.Context, col *mongo.Collection, id string) (Doc, error) {
	var raw bson.M
	err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, err
	}
	doc := normalizeDoc(raw)
	delete(doc, "_id")
	return doc, nil
}

func mongoSet(ctx context.Context, col *mongo.Collection, id string, doc Doc) error {
	body := resolveForWrite(doc, time.Now().UTC())
	body["_id"] = id
	_, err := col.ReplaceOne(ctx, bson.M{"_id": id}, body, options.Replace().SetUpsert(true))
	return err
}

func mongoMerge(ctx context.Context, col *mongo.Collection, id string, doc Doc) error {
	update := mergeUpdate(doc)
	if len(update) == 0 {
		return nil
	}
	_, err := col.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	return err
}

// mergeUpdate flattens nested maps into dotted $set paths so sibling fields survive.
func mergeUpdate(doc Doc) bson.M {
	set := bson.M{}
	unset := bson.M{}
	stamp := bson.M{}
	flattenInto("", doc, set, unset, stamp)

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(stamp) > 0 {
		update["$currentDate"] = stamp
	}
	return update
}

func flattenInto(prefix string, doc Doc, set, unset, stamp bson.M) {
	for _, k := range SortedKeys(doc) {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := doc[k].(type) {
		case sentinel:
			if v == Delete {
				unset[path] = ""
			} else {
				stamp[path] = true
			}
		case map[string]interface{}:
			if len(v) == 0 {
				set[path] = bson.M{}
				continue
			}
			flattenInto(path, v, set, unset, stamp)
		default:
			set[path] = v
		}
	}
}

// resolveForWrite replaces sentinels for whole-document writes.
func resolveForWrite(doc Doc, now time.Time) bson.M {
	out := bson.M{}
	for k, v := range doc {
		switch t := v.(type) {
		case sentinel:
			if t == ServerTimestamp {
				out[k] = now
			}
		case map[string]interface{}:
			out[k] = map[string]interface{}(resolveForWrite(t, now))
		default:
			out[k] = v
		}
	}
	return out
}

func mongoFilter(filters []Filter) (bson.M, error) {
	if len(filters) == 0 {
		return bson.M{}, nil
	}
	clauses := make(bson.A, 0, len(filters))
	for _, f := range filters {
		switch f.Op {
		case OpEqual, OpArrayContains:
			clauses = append(clauses, bson.M{f.Field: f.Value})
		case OpGreaterOrEq:
			clauses = append(clauses, bson.M{f.Field: bson.M{"$gte": f.Value}})
		case OpLessOrEq:
			clauses = append(clauses, bson.M{f.Field: bson.M{"$lte": f.Value}})
		default:
			return nil, fmt.Errorf("mongo store: unsupported operator %q", f.Op)
		}
	}
	return bson.M{"$and": clauses}, nil
}

// normalizeDoc converts driver-specific containers into plain Go values.
func normalizeDoc(m map[string]interface{}) Doc {
	out := make(Doc, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return normalizeDoc(t)
	case map[string]interface{}:
		return normalizeDoc(t)
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return normalizeDoc(m)
	case bson.A:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = normalizeValue(t[i])
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	}
	return v
}

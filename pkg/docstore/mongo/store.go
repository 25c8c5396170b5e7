// Package mongo keeps documents in MongoDB collections and turns change
// streams into docstore subscriptions. Change streams require a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alfianlosari/arinventory/pkg/docstore"
)

const idField = "_id"

type pinger interface {
	Ping(ctx context.Context) error
}

type Store struct {
	db     *mongo.Database
	pinger pinger

	mu    sync.Mutex
	feeds map[*docstore.Feed]struct{}
}

// New builds a store over db. p is used for health checks.
func New(db *mongo.Database, p pinger) *Store {
	return &Store{db: db, pinger: p, feeds: map[*docstore.Feed]struct{}{}}
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{idField: id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: docstore.FieldCreatedAt, Value: 1}, {Key: idField, Value: 1}})
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	docs := []docstore.Document{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	docstore.SortDocuments(docs)
	return docs, nil
}

// Set replaces the document body in one server-side update so createdAt
// survives rewrites and both timestamps come from the server clock.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{idField: id},
		upsertPipeline(id, fields),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{idField: id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) WatchCollection(ctx context.Context, collection string, fn docstore.CollectionListener) (docstore.Subscription, error) {
	return s.watch(ctx, collection, mongo.Pipeline{}, func(ctx context.Context) {
		docs, err := s.List(ctx, collection)
		if err != nil {
			if ctx.Err() == nil {
				fn(nil, err)
			}
			return
		}
		fn(docs, nil)
	}, func(err error) { fn(nil, err) })
}

func (s *Store) WatchDocument(ctx context.Context, collection, id string, fn docstore.DocumentListener) (docstore.Subscription, error) {
	return s.watch(ctx, collection, documentFilter(id), func(ctx context.Context) {
		doc, err := s.Get(ctx, collection, id)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			fn(docstore.DocumentSnapshot{Exists: false, Document: docstore.Document{ID: id}}, nil)
		case err != nil:
			if ctx.Err() == nil {
				fn(docstore.DocumentSnapshot{}, err)
			}
		default:
			fn(docstore.DocumentSnapshot{Exists: true, Document: doc}, nil)
		}
	}, func(err error) { fn(docstore.DocumentSnapshot{}, err) })
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return s.db.Client().Ping(ctx, nil)
	}
	return s.pinger.Ping(ctx)
}

// Close stops every live subscription. The connection belongs to the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	feeds := make([]*docstore.Feed, 0, len(s.feeds))
	for feed := range s.feeds {
		feeds = append(feeds, feed)
	}
	s.mu.Unlock()
	for _, feed := range feeds {
		feed.Cancel()
	}
	return nil
}

// watch opens the change stream before the first read so nothing slips
// between the snapshot and the stream.
func (s *Store) watch(ctx context.Context, collection string, pipeline mongo.Pipeline, refresh func(context.Context), onErr func(error)) (docstore.Subscription, error) {
	stream, err := s.db.Collection(collection).Watch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", collection, err)
	}

	feed := docstore.NewFeed(ctx, refresh, onErr)
	s.mu.Lock()
	s.feeds[feed] = struct{}{}
	s.mu.Unlock()
	feed.OnStop(func() {
		s.mu.Lock()
		delete(s.feeds, feed)
		s.mu.Unlock()
	})

	go func() {
		runCtx := feed.Context()
		defer stream.Close(context.Background())
		for stream.Next(runCtx) {
			feed.Notify()
		}
		if err := stream.Err(); err != nil && runCtx.Err() == nil {
			feed.Fail(fmt.Errorf("change stream %s: %w", collection, err))
		}
		<-runCtx.Done()
		feed.Cancel()
	}()
	return feed, nil
}

func documentFilter(id string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
}

// upsertPipeline builds an update pipeline that swaps the whole body while
// keeping an existing createdAt. Values are wrapped in $literal so strings
// beginning with '$' are never read as field paths.
func upsertPipeline(id string, fields map[string]any) mongo.Pipeline {
	writable := docstore.WritableFields(fields)
	body := bson.D{{Key: idField, Value: id}}
	for _, key := range slices.Sorted(maps.Keys(writable)) {
		if key == idField {
			continue
		}
		body = append(body, bson.E{Key: key, Value: bson.D{{Key: "$literal", Value: writable[key]}}})
	}
	body = append(body,
		bson.E{Key: docstore.FieldCreatedAt, Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + docstore.FieldCreatedAt, "$$NOW"}}}},
		bson.E{Key: docstore.FieldUpdatedAt, Value: "$$NOW"},
	)
	return mongo.Pipeline{
		{{Key: "$replaceWith", Value: body}},
	}
}

func fromBSON(raw bson.M) docstore.Document {
	doc := docstore.Document{Fields: map[string]any{}}
	for key, value := range raw {
		switch key {
		case idField:
			doc.ID = fmt.Sprint(value)
		case docstore.FieldCreatedAt:
			doc.CreatedAt = asTime(value)
		case docstore.FieldUpdatedAt:
			doc.UpdatedAt = asTime(value)
		default:
			doc.Fields[key] = normalize(value)
		}
	}
	return doc
}

func asTime(value any) time.Time {
	switch v := value.(type) {
	case primitive.DateTime:
		return v.Time().UTC()
	case time.Time:
		return v.UTC()
	default:
		return time.Time{}
	}
}

func normalize(value any) any {
	switch v := value.(type) {
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	case primitive.A:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

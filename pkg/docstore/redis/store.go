// Package redis stores documents as JSON values in Redis. A sorted set keeps
// the collection order and a pub/sub channel announces changed ids so
// subscribers can refresh.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alfianlosari/arinventory/pkg/docstore"
	pkgredis "github.com/alfianlosari/arinventory/pkg/redis"
)

const maxTxRetries = 5

var errTxContention = errors.New("redis: too much write contention")

type record struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (r record) document() docstore.Document {
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return docstore.Document{ID: r.ID, Fields: fields, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

type Store struct {
	client *pkgredis.Client

	mu    sync.Mutex
	feeds map[*docstore.Feed]struct{}
}

func New(client *pkgredis.Client) *Store {
	return &Store{client: client, feeds: map[*docstore.Feed]struct{}{}}
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	raw, err := s.client.Raw().Get(ctx, s.client.DocumentKey(collection, id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return rec.document(), nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	rdb := s.client.Raw()
	ids, err := rdb.ZRange(ctx, s.client.IndexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []docstore.Document{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.client.DocumentKey(collection, id)
	}
	values, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}
	docs := make([]docstore.Document, 0, len(values))
	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, ids[i], err)
		}
		docs = append(docs, rec.document())
	}
	docstore.SortDocuments(docs)
	return docs, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	docKey := s.client.DocumentKey(collection, id)
	indexKey := s.client.IndexKey(collection)
	channel := s.client.ChangesChannel(collection)

	txf := func(tx *goredis.Tx) error {
		now, err := s.client.ServerTime(ctx)
		if err != nil {
			return err
		}
		now = now.UTC()
		rec := record{ID: id, Fields: docstore.WritableFields(fields), CreatedAt: now, UpdatedAt: now}

		existing, err := tx.Get(ctx, docKey).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			var prev record
			if err := json.Unmarshal(existing, &prev); err == nil && !prev.CreatedAt.IsZero() {
				rec.CreatedAt = prev.CreatedAt
			}
		}

		body, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, docKey, body, 0)
			pipe.ZAdd(ctx, indexKey, goredis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: id})
			pipe.Publish(ctx, channel, id)
			return nil
		})
		return err
	}
	if err := s.watch(ctx, txf, docKey); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Raw().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.client.DocumentKey(collection, id))
		pipe.ZRem(ctx, s.client.IndexKey(collection), id)
		pipe.Publish(ctx, s.client.ChangesChannel(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) WatchCollection(ctx context.Context, collection string, fn docstore.CollectionListener) (docstore.Subscription, error) {
	return s.subscribe(ctx, collection, "", func(ctx context.Context) {
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
	return s.subscribe(ctx, collection, id, func(ctx context.Context) {
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
	return s.client.Ping(ctx)
}

// Close stops every live subscription. The connection itself belongs to the caller.
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

// subscribe confirms the channel subscription before the first read so no
// change published in between is lost.
func (s *Store) subscribe(ctx context.Context, collection, docID string, refresh func(context.Context), onErr func(error)) (docstore.Subscription, error) {
	ps := s.client.Raw().Subscribe(ctx, s.client.ChangesChannel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	feed := docstore.NewFeed(ctx, refresh, onErr)
	s.mu.Lock()
	s.feeds[feed] = struct{}{}
	s.mu.Unlock()
	feed.OnStop(func() {
		_ = ps.Close()
		s.mu.Lock()
		delete(s.feeds, feed)
		s.mu.Unlock()
	})

	go func() {
		msgs := ps.Channel()
		for {
			select {
			case <-feed.Context().Done():
				feed.Cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					if feed.Context().Err() == nil {
						feed.Fail(errors.New("redis: change feed closed"))
					}
					<-feed.Context().Done()
					feed.Cancel()
					return
				}
				if docID == "" || msg.Payload == docID {
					feed.Notify()
				}
			}
		}
	}()
	return feed, nil
}

func (s *Store) watch(ctx context.Context, txf func(*goredis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Raw().Watch(ctx, txf, keys...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxContention
}

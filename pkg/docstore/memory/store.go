// Package memory is an in-process document store with push subscriptions.
// It backs local development and the test suites.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/alfianlosari/arinventory/pkg/docstore"
)

type watcher struct {
	collection string
	docID      string
	feed       *docstore.Feed
}

type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	collections map[string]map[string]docstore.Document
	watchers    map[int]*watcher
	nextWatcher int
	failWrites  error
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		collections: map[string]map[string]docstore.Document{},
		watchers:    map[int]*watcher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailWrites makes subsequent Set and Delete calls return err (nil restores normal behaviour).
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *Store) List(_ context.Context, collection string) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(collection), nil
}

func (s *Store) listLocked(collection string) []docstore.Document {
	docs := make([]docstore.Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		docs = append(docs, cloneDocument(doc))
	}
	docstore.SortDocuments(docs)
	return docs
}

func (s *Store) Set(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	if s.failWrites != nil {
		err := s.failWrites
		s.mu.Unlock()
		return err
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = map[string]docstore.Document{}
		s.collections[collection] = docs
	}
	now := s.now().UTC()
	doc := docstore.Document{
		ID:        id,
		Fields:    docstore.WritableFields(fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := docs[id]; ok {
		doc.CreatedAt = existing.CreatedAt
	}
	docs[id] = doc
	s.mu.Unlock()

	s.notify(collection, id)
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if s.failWrites != nil {
		err := s.failWrites
		s.mu.Unlock()
		return err
	}
	_, existed := s.collections[collection][id]
	delete(s.collections[collection], id)
	s.mu.Unlock()

	if existed {
		s.notify(collection, id)
	}
	return nil
}

func (s *Store) WatchCollection(ctx context.Context, collection string, fn docstore.CollectionListener) (docstore.Subscription, error) {
	feed := docstore.NewFeed(ctx, func(context.Context) {
		s.mu.RLock()
		docs := s.listLocked(collection)
		s.mu.RUnlock()
		fn(docs, nil)
	}, func(err error) { fn(nil, err) })
	s.register(&watcher{collection: collection, feed: feed})
	return feed, nil
}

func (s *Store) WatchDocument(ctx context.Context, collection, id string, fn docstore.DocumentListener) (docstore.Subscription, error) {
	feed := docstore.NewFeed(ctx, func(ctx context.Context) {
		doc, err := s.Get(ctx, collection, id)
		if err != nil {
			fn(docstore.DocumentSnapshot{Exists: false, Document: docstore.Document{ID: id}}, nil)
			return
		}
		fn(docstore.DocumentSnapshot{Exists: true, Document: doc}, nil)
	}, func(err error) { fn(docstore.DocumentSnapshot{}, err) })
	s.register(&watcher{collection: collection, docID: id, feed: feed})
	return feed, nil
}

// ActiveWatchers reports the number of live subscriptions.
func (s *Store) ActiveWatchers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	watchers := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()
	for _, w := range watchers {
		w.feed.Cancel()
	}
	return nil
}

func (s *Store) register(w *watcher) {
	s.mu.Lock()
	key := s.nextWatcher
	s.nextWatcher++
	s.watchers[key] = w
	s.mu.Unlock()

	w.feed.OnStop(func() {
		s.mu.Lock()
		delete(s.watchers, key)
		s.mu.Unlock()
	})
	go func() {
		<-w.feed.Context().Done()
		w.feed.Cancel()
	}()
	// Writes that landed between the initial read and registration.
	w.feed.Notify()
}

func (s *Store) notify(collection, id string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.watchers {
		if w.collection != collection {
			continue
		}
		if w.docID != "" && w.docID != id {
			continue
		}
		w.feed.Notify()
	}
}

func cloneDocument(doc docstore.Document) docstore.Document {
	doc.Fields = maps.Clone(doc.Fields)
	return doc
}

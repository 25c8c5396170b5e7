// Package docstore describes the managed document database the inventory is
// synchronised through: keyed documents, full-document upserts and real-time
// subscriptions to a collection or a single document.
package docstore

import (
	"context"
	"errors"
	"sort"
	"time"
)

const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var ErrNotFound = errors.New("docstore: document not found")

// Document is a stored record. Timestamps are assigned by the store.
type Document struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentSnapshot is delivered to single-document listeners. Exists is false
// once the document has been removed (or was never written).
type DocumentSnapshot struct {
	Exists   bool
	Document Document
}

// CollectionListener receives the full ordered collection on every change.
type CollectionListener func(docs []Document, err error)

// DocumentListener receives the current state of one document on every change.
type DocumentListener func(snap DocumentSnapshot, err error)

// Subscription is a live listener registration.
type Subscription interface {
	Cancel()
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	WatchCollection(ctx context.Context, collection string, fn CollectionListener) (Subscription, error)
	WatchDocument(ctx context.Context, collection, id string, fn DocumentListener) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// SortDocuments applies the default collection order: oldest first, id as tie-breaker.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

// WritableFields copies fields, dropping the store-managed timestamps.
func WritableFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == FieldCreatedAt || k == FieldUpdatedAt {
			continue
		}
		out[k] = v
	}
	return out
}

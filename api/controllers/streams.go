package controllers

import (
	"net/http"
	"sync"
	"time"

	"github.com/alfianlosari/arinventory/api/responses"
	"github.com/alfianlosari/arinventory/internal/items"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

const (
	eventSnapshot = "snapshot"
	eventItem     = "item"
	eventDeleted  = "deleted"
)

var keepAliveInterval = 15 * time.Second

// latest is a one-slot queue that keeps only the newest value. Slow
// clients skip intermediate snapshots instead of blocking the listener.
type latest[T any] struct {
	ch chan T
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{ch: make(chan T, 1)}
}

func (l *latest[T]) push(v T) {
	for {
		select {
		case l.ch <- v:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}

type listUpdate struct {
	items []items.InventoryItem
	err   error
}

type itemUpdate struct {
	item items.InventoryItem
	err  error
}

// tombstone latches the first deletion so later updates cannot hide it.
type tombstone struct {
	once sync.Once
	ch   chan struct{}
}

func newTombstone() *tombstone {
	return &tombstone{ch: make(chan struct{})}
}

func (t *tombstone) set() {
	t.once.Do(func() { close(t.ch) })
}

func (t *tombstone) isSet() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// StreamItems sends a snapshot event with the whole ordered list now and
// after every change.
func StreamItems(svc ItemService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		queue := newLatest[listUpdate]()
		sub, err := svc.ListItems(ctx, items.ListObserver{
			OnUpdate: func(list []items.InventoryItem) { queue.push(listUpdate{items: list}) },
			OnError:  func(err error) { queue.push(listUpdate{err: err}) },
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer sub.Cancel()

		stream, err := responses.NewEventStream(w)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := stream.Comment("keep-alive"); err != nil {
					return
				}
			case u := <-queue.ch:
				if u.err != nil {
					logg.WarnErr(ctx, "item list stream error", u.err)
					err = stream.SendError(u.err)
				} else {
					err = stream.Send(eventSnapshot, u.items)
				}
				if err != nil {
					return
				}
			}
		}
	}
}

// StreamItem sends item events for one item. A deletion sends one deleted
// event and ends the stream, even when newer updates are already queued.
func StreamItem(svc ItemService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := itemIDParam(r)
		if id == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "item id is required"))
			return
		}
		ctx = logg.WithItemID(ctx, id)

		queue := newLatest[itemUpdate]()
		gone := newTombstone()
		sub, err := svc.ListenToItem(ctx, id, items.ItemObserver{
			OnUpdate:  func(item items.InventoryItem) { queue.push(itemUpdate{item: item}) },
			OnDeleted: gone.set,
			OnError:   func(err error) { queue.push(itemUpdate{err: err}) },
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer sub.Cancel()

		stream, err := responses.NewEventStream(w)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sendDeleted := func() {
			_ = stream.Send(eventDeleted, map[string]string{"id": id})
		}
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-gone.ch:
				sendDeleted()
				return
			case <-ticker.C:
				if err := stream.Comment("keep-alive"); err != nil {
					return
				}
			case u := <-queue.ch:
				if gone.isSet() {
					sendDeleted()
					return
				}
				switch {
				case u.err != nil:
					logg.WarnErr(ctx, "item stream error", u.err)
					err = stream.SendError(u.err)
				default:
					err = stream.Send(eventItem, u.item)
				}
				if err != nil {
					return
				}
			}
		}
	}
}

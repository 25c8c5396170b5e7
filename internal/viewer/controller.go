package viewer

import (
	"context"
	"sync"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/items"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

type itemListener interface {
	ListenToItem(ctx context.Context, id string, obs items.ItemObserver) (items.Subscription, error)
}

type fileFetcher interface {
	FetchLocalFile(ctx context.Context, modelURL string) (string, error)
}

type renderableLoader interface {
	LoadRenderable(ctx context.Context, localPath, sourceURL string) *assets.Renderable
}

type Options struct {
	Logger *logger.Logger
	// OnItemDeleted fires once when the item disappears.
	OnItemDeleted func()
	OnItem        func(items.InventoryItem)
	OnDisplay     func(Display)
	OnError       func(error)
}

// Controller follows one item and keeps its model displayed.
type Controller struct {
	id      string
	items   itemListener
	files   fileFetcher
	loader  renderableLoader
	logg    *logger.Logger
	opts    Options
	display *StateMachine

	mu         sync.Mutex
	item       *items.InventoryItem
	loadedFile string
	sub        items.Subscription
	deleted    sync.Once
}

func NewController(id string, repo itemListener, files fileFetcher, loader renderableLoader, opts Options) (*Controller, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if repo == nil || files == nil || loader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "viewer dependencies are required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Controller{
		id:      id,
		items:   repo,
		files:   files,
		loader:  loader,
		logg:    logg,
		opts:    opts,
		display: NewStateMachine(opts.OnDisplay),
	}, nil
}

// Start subscribes to the item. Updates are handled on the subscription's
// delivery goroutine, one at a time.
func (c *Controller) Start(ctx context.Context) error {
	ctx = c.logg.WithItemID(ctx, c.id)
	sub, err := c.items.ListenToItem(ctx, c.id, items.ItemObserver{
		OnUpdate:  func(item items.InventoryItem) { c.handleUpdate(ctx, item) },
		OnDeleted: func() { c.handleDeleted() },
		OnError: func(err error) {
			c.logg.WarnErr(ctx, "item subscription error", err)
			if c.opts.OnError != nil {
				c.opts.OnError(err)
			}
		},
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

func (c *Controller) Stop() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (c *Controller) Item() (items.InventoryItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.item == nil {
		return items.InventoryItem{}, false
	}
	return *c.item, true
}

func (c *Controller) Display() Display {
	return c.display.Current()
}

func (c *Controller) handleDeleted() {
	c.deleted.Do(func() {
		c.mu.Lock()
		c.loadedFile = ""
		c.mu.Unlock()
		c.display.Clear()
		if c.opts.OnItemDeleted != nil {
			c.opts.OnItemDeleted()
		}
	})
}

func (c *Controller) handleUpdate(ctx context.Context, item items.InventoryItem) {
	c.mu.Lock()
	c.item = &item
	c.mu.Unlock()
	if c.opts.OnItem != nil {
		c.opts.OnItem(item)
	}

	if !item.HasModel() {
		c.setLoaded("")
		c.display.Clear()
		return
	}

	modelURL := *item.ModelLink
	fileName := assets.CacheFileName(modelURL)
	c.mu.Lock()
	same := c.loadedFile == fileName
	c.mu.Unlock()
	if same || c.display.Showing(modelURL) {
		return
	}

	c.display.BeginLoading(modelURL)
	localPath, err := c.files.FetchLocalFile(ctx, modelURL)
	if err != nil {
		c.logg.WarnErr(ctx, "model download failed", err)
		c.setLoaded("")
		c.display.Fail()
		return
	}
	r := c.loader.LoadRenderable(ctx, localPath, modelURL)
	if r == nil {
		c.setLoaded("")
		c.display.Fail()
		return
	}
	c.setLoaded(fileName)
	c.display.Ready(r)
}

func (c *Controller) setLoaded(name string) {
	c.mu.Lock()
	c.loadedFile = name
	c.mu.Unlock()
}

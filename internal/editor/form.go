// Package editor implements the add/edit item form: field state, saving,
// model upload and deletion with a single observable loading state.
package editor

import (
	"context"
	"strings"
	"sync"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/items"
	"github.com/alfianlosari/arinventory/pkg/enums"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

type FormType string

const (
	FormTypeAdd  FormType = "add"
	FormTypeEdit FormType = "edit"
)

type itemWriter interface {
	Save(ctx context.Context, item items.InventoryItem) error
	Delete(ctx context.Context, id string) error
}

type modelPipeline interface {
	UploadModel(ctx context.Context, id string, data []byte, onProgress func(assets.UploadProgress)) (assets.UploadResult, error)
	DeleteModel(ctx context.Context, id string) error
}

type Options struct {
	Logger *logger.Logger
	// OnChange receives a snapshot after every state change.
	OnChange func(State)
}

// State is a point-in-time copy of the form. ProgressTicks counts the
// progress callbacks seen by the latest upload.
type State struct {
	FormType       FormType               `json:"formType"`
	Title          string                 `json:"title"`
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Quantity       int                    `json:"quantity"`
	ModelURL       string                 `json:"modelUrl,omitempty"`
	ThumbnailURL   string                 `json:"thumbnailUrl,omitempty"`
	LoadingState   enums.LoadingState     `json:"loadingState"`
	Error          string                 `json:"error,omitempty"`
	UploadProgress *assets.UploadProgress `json:"uploadProgress,omitempty"`
	ProgressTicks  int                    `json:"progressTicks"`
}

// Form is safe for concurrent use; progress callbacks may arrive from
// transport goroutines.
type Form struct {
	repo     itemWriter
	pipeline modelPipeline
	logg     *logger.Logger
	onChange func(State)

	mu           sync.Mutex
	formType     FormType
	base         items.InventoryItem
	name         string
	quantity     int
	modelURL     string
	thumbnailURL string
	loading      enums.LoadingState
	errMsg       string
	progress     *assets.UploadProgress
	ticks        int
}

// NewAddForm starts a form for a new item with a freshly minted id.
func NewAddForm(repo itemWriter, pipeline modelPipeline, opts Options) (*Form, error) {
	return newForm(FormTypeAdd, items.NewItem("", 0), repo, pipeline, opts)
}

// NewEditForm starts a form prefilled from item.
func NewEditForm(item items.InventoryItem, repo itemWriter, pipeline modelPipeline, opts Options) (*Form, error) {
	if item.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	return newForm(FormTypeEdit, item, repo, pipeline, opts)
}

func newForm(ft FormType, item items.InventoryItem, repo itemWriter, pipeline modelPipeline, opts Options) (*Form, error) {
	if repo == nil || pipeline == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "form dependencies are required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	f := &Form{
		repo:     repo,
		pipeline: pipeline,
		logg:     logg,
		onChange: opts.OnChange,
		formType: ft,
		base:     item,
		name:     item.Name,
		quantity: item.Quantity,
		loading:  enums.LoadingStateNone,
	}
	if item.ModelLink != nil {
		f.modelURL = *item.ModelLink
	}
	if item.ThumbnailLink != nil {
		f.thumbnailURL = *item.ThumbnailLink
	}
	return f, nil
}

func (f *Form) ID() string {
	return f.base.ID
}

func (f *Form) Title() string {
	return title(f.formType)
}

func title(ft FormType) string {
	if ft == FormTypeEdit {
		return "Edit Item"
	}
	return "Add Item"
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Form) snapshotLocked() State {
	s := State{
		FormType:      f.formType,
		Title:         title(f.formType),
		ID:            f.base.ID,
		Name:          f.name,
		Quantity:      f.quantity,
		ModelURL:      f.modelURL,
		ThumbnailURL:  f.thumbnailURL,
		LoadingState:  f.loading,
		Error:         f.errMsg,
		ProgressTicks: f.ticks,
	}
	if f.progress != nil {
		p := *f.progress
		s.UploadProgress = &p
	}
	return s
}

// update applies fn under the lock and publishes the resulting state.
func (f *Form) update(fn func()) {
	f.mu.Lock()
	fn()
	snap := f.snapshotLocked()
	f.mu.Unlock()
	if f.onChange != nil {
		f.onChange(snap)
	}
}

func (f *Form) SetName(name string) {
	f.update(func() { f.name = name })
}

// SetQuantity clamps negative values to zero.
func (f *Form) SetQuantity(q int) {
	if q < 0 {
		q = 0
	}
	f.update(func() { f.quantity = q })
}

func (f *Form) Increment() {
	f.update(func() { f.quantity++ })
}

// Decrement never goes below zero.
func (f *Form) Decrement() {
	f.update(func() {
		if f.quantity > 0 {
			f.quantity--
		}
	})
}

// CanSave is false for a blank name.
func (f *Form) CanSave() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.TrimSpace(f.name) != ""
}

// ClearError dismisses the last error message.
func (f *Form) ClearError() {
	f.update(func() { f.errMsg = "" })
}

// begin moves the form into a busy state. Only one operation runs at a time.
func (f *Form) begin(state enums.LoadingState) error {
	var err error
	f.update(func() {
		if f.loading.IsBusy() {
			err = pkgerrors.New(pkgerrors.CodeValidation, "form is busy: "+f.loading.String())
			return
		}
		f.loading = state
	})
	return err
}

func (f *Form) finish(err error) {
	f.update(func() {
		f.loading = enums.LoadingStateNone
		if err != nil {
			f.errMsg = errorMessage(err)
		}
	})
}

func errorMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}

// Item builds the record Save would persist.
func (f *Form) Item() items.InventoryItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itemLocked()
}

func (f *Form) itemLocked() items.InventoryItem {
	item := f.base
	item.Name = f.name
	item.Quantity = f.quantity
	return item.WithLinks(f.modelURL, f.thumbnailURL)
}

// Save writes the whole item, current links included.
func (f *Form) Save(ctx context.Context) error {
	if !f.CanSave() {
		err := pkgerrors.New(pkgerrors.CodeValidation, "name is required")
		f.update(func() { f.errMsg = err.Message() })
		return err
	}
	if err := f.begin(enums.LoadingStateSavingItem); err != nil {
		return err
	}
	item := f.Item()
	err := f.repo.Save(ctx, item)
	if err == nil {
		f.mu.Lock()
		f.base = item
		f.mu.Unlock()
	}
	f.finish(err)
	return err
}

// UploadModel pushes a new model and merges the resulting links into the
// form. The item is not saved. A missing thumbnail keeps the previous link.
func (f *Form) UploadModel(ctx context.Context, data []byte) error {
	if err := f.begin(enums.LoadingStateUploadingModel); err != nil {
		return err
	}
	f.update(func() {
		f.progress = &assets.UploadProgress{Stage: enums.UploadStageModel}
		f.ticks = 0
	})

	res, err := f.pipeline.UploadModel(ctx, f.ID(), data, func(p assets.UploadProgress) {
		f.update(func() {
			f.loading = p.Stage.LoadingState()
			f.progress = &p
			f.ticks++
		})
	})
	if err == nil {
		f.update(func() {
			f.modelURL = res.ModelURL
			if res.ThumbnailURL != "" {
				f.thumbnailURL = res.ThumbnailURL
			}
		})
	} else {
		f.logg.WarnErr(f.logg.WithItemID(ctx, f.ID()), "model upload failed", err)
	}
	f.finish(err)
	return err
}

// DeleteModel removes both blobs and clears the links. Links survive a
// failed model delete.
func (f *Form) DeleteModel(ctx context.Context) error {
	if err := f.begin(enums.LoadingStateDeletingModel); err != nil {
		return err
	}
	err := f.pipeline.DeleteModel(ctx, f.ID())
	if err == nil {
		f.update(func() {
			f.modelURL = ""
			f.thumbnailURL = ""
		})
	}
	f.finish(err)
	return err
}

// DeleteItem removes the document and, best effort, its blobs.
func (f *Form) DeleteItem(ctx context.Context) error {
	if err := f.begin(enums.LoadingStateDeletingItem); err != nil {
		return err
	}
	err := f.repo.Delete(ctx, f.ID())
	f.finish(err)
	return err
}

package items

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Collection is the default document collection for items.
	Collection = "items"

	ModelExtension     = ".usdz"
	ThumbnailExtension = ".jpg"

	ModelContentType     = "model/vnd.usd+zip"
	ThumbnailContentType = "image/jpeg"
)

// InventoryItem is the persisted inventory record. ModelLink and
// ThumbnailLink are either both set or both nil.
type InventoryItem struct {
	ID            string     `json:"id" mapstructure:"-"`
	Name          string     `json:"name" mapstructure:"name"`
	Quantity      int        `json:"quantity" mapstructure:"quantity"`
	CreatedAt     *time.Time `json:"createdAt,omitempty" mapstructure:"-"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty" mapstructure:"-"`
	ModelLink     *string    `json:"modelLink,omitempty" mapstructure:"modelLink"`
	ThumbnailLink *string    `json:"thumbnailLink,omitempty" mapstructure:"thumbnailLink"`
}

// NewItem mints a fresh id. Links start absent.
func NewItem(name string, quantity int) InventoryItem {
	if quantity < 0 {
		quantity = 0
	}
	return InventoryItem{
		ID:       uuid.NewString(),
		Name:     name,
		Quantity: quantity,
	}
}

// ModelPath is the blob path of an item's 3D model.
func ModelPath(id string) string {
	return id + ModelExtension
}

// ThumbnailPath is the blob path of an item's thumbnail.
func ThumbnailPath(id string) string {
	return id + ThumbnailExtension
}

// ItemIDFromModelPath reverses ModelPath.
func ItemIDFromModelPath(path string) (string, bool) {
	id, ok := strings.CutSuffix(path, ModelExtension)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (i InventoryItem) ModelURL() *url.URL {
	return parseLink(i.ModelLink)
}

func (i InventoryItem) ThumbnailURL() *url.URL {
	return parseLink(i.ThumbnailLink)
}

func (i InventoryItem) HasModel() bool {
	return i.ModelLink != nil && *i.ModelLink != ""
}

// WithLinks returns a copy carrying the given links. Empty strings count as absent.
func (i InventoryItem) WithLinks(modelURL, thumbnailURL string) InventoryItem {
	i.ModelLink = optional(modelURL)
	i.ThumbnailLink = optional(thumbnailURL)
	return i
}

// WithoutLinks returns a copy with both links cleared.
func (i InventoryItem) WithoutLinks() InventoryItem {
	i.ModelLink = nil
	i.ThumbnailLink = nil
	return i
}

func parseLink(link *string) *url.URL {
	if link == nil || *link == "" {
		return nil
	}
	u, err := url.Parse(*link)
	if err != nil {
		return nil
	}
	return u
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

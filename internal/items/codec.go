package items

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/alfianlosari/arinventory/pkg/docstore"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

const (
	fieldName          = "name"
	fieldQuantity      = "quantity"
	fieldModelLink     = "modelLink"
	fieldThumbnailLink = "thumbnailLink"
	// legacyModelLink is the field name older clients wrote the model URL under.
	legacyModelLink = "usdzLink"
)

// toFields encodes an item as a full document body. Absent links are omitted
// so a rewrite removes them.
func toFields(item InventoryItem) map[string]any {
	fields := map[string]any{
		fieldName:     item.Name,
		fieldQuantity: item.Quantity,
	}
	if item.ModelLink != nil {
		fields[fieldModelLink] = *item.ModelLink
	}
	if item.ThumbnailLink != nil {
		fields[fieldThumbnailLink] = *item.ThumbnailLink
	}
	return fields
}

// fromDocument decodes a stored document. Malformed payloads yield a DECODE_ERROR.
func fromDocument(doc docstore.Document) (InventoryItem, error) {
	fields := doc.Fields
	if _, ok := fields[fieldModelLink]; !ok {
		if legacy, ok := fields[legacyModelLink]; ok {
			fields = cloneWith(fields, fieldModelLink, legacy)
		}
	}

	var item InventoryItem
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &item,
		TagName: "mapstructure",
	})
	if err != nil {
		return InventoryItem{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build item decoder")
	}
	if err := decoder.Decode(fields); err != nil {
		return InventoryItem{}, pkgerrors.Wrap(pkgerrors.CodeDecode, err, fmt.Sprintf("decode item %s: %v", doc.ID, err))
	}
	if item.Quantity < 0 {
		return InventoryItem{}, pkgerrors.New(pkgerrors.CodeDecode, fmt.Sprintf("decode item %s: negative quantity %d", doc.ID, item.Quantity))
	}

	item.ID = doc.ID
	if !doc.CreatedAt.IsZero() {
		created := doc.CreatedAt
		item.CreatedAt = &created
	}
	if !doc.UpdatedAt.IsZero() {
		updated := doc.UpdatedAt
		item.UpdatedAt = &updated
	}
	if item.ModelLink != nil && *item.ModelLink == "" {
		item.ModelLink = nil
	}
	if item.ThumbnailLink != nil && *item.ThumbnailLink == "" {
		item.ThumbnailLink = nil
	}
	return item, nil
}

func cloneWith(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}

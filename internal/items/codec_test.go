package items

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfianlosari/arinventory/pkg/docstore"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

func TestToFieldsOmitsAbsentLinks(t *testing.T) {
	item := NewItem("Widget", 3)
	fields := toFields(item)
	assert.Equal(t, map[string]any{"name": "Widget", "quantity": 3}, fields)

	fields = toFields(item.WithLinks("https://m", "https://t"))
	assert.Equal(t, "https://m", fields["modelLink"])
	assert.Equal(t, "https://t", fields["thumbnailLink"])
}

func TestFromDocument(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	item, err := fromDocument(docstore.Document{
		ID: "X",
		Fields: map[string]any{
			"name":          "Widget",
			"quantity":      float64(3),
			"modelLink":     "https://m?token=a",
			"thumbnailLink": "https://t?token=b",
			"extra":         true,
		},
		CreatedAt: created,
		UpdatedAt: created,
	})
	require.NoError(t, err)
	assert.Equal(t, "X", item.ID)
	assert.Equal(t, "Widget", item.Name)
	assert.Equal(t, 3, item.Quantity)
	require.NotNil(t, item.CreatedAt)
	assert.Equal(t, created, *item.CreatedAt)
	require.NotNil(t, item.ModelURL())
	assert.Equal(t, "a", item.ModelURL().Query().Get("token"))
}

func TestFromDocumentAcceptsLegacyModelField(t *testing.T) {
	item, err := fromDocument(docstore.Document{ID: "X", Fields: map[string]any{
		"name":     "Widget",
		"quantity": int32(1),
		"usdzLink": "https://legacy",
	}})
	require.NoError(t, err)
	require.NotNil(t, item.ModelLink)
	assert.Equal(t, "https://legacy", *item.ModelLink)
	assert.Nil(t, item.CreatedAt)
}

func TestFromDocumentRejectsMalformedPayload(t *testing.T) {
	cases := map[string]map[string]any{
		"quantity as text":  {"name": "Widget", "quantity": "three"},
		"negative quantity": {"name": "Widget", "quantity": -1},
		"name as number":    {"name": 12, "quantity": 1},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fromDocument(docstore.Document{ID: "X", Fields: fields})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDecode))
		})
	}
}

func TestFromDocumentTreatsEmptyLinksAsAbsent(t *testing.T) {
	item, err := fromDocument(docstore.Document{ID: "X", Fields: map[string]any{
		"name": "Widget", "quantity": 0, "modelLink": "", "thumbnailLink": nil,
	}})
	require.NoError(t, err)
	assert.Nil(t, item.ModelLink)
	assert.Nil(t, item.ThumbnailLink)
	assert.False(t, item.HasModel())
}

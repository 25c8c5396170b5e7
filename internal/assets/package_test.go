package assets

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

func TestOpenPackageCollectsLayersAndTextures(t *testing.T) {
	data := buildUSDZ(t,
		entry{name: "root.usdc", data: []byte("PXR-USDC")},
		entry{name: "sub/extra.usda", data: []byte("#usda 1.0")},
		entry{name: "tex/a.png", data: []byte("x")},
		entry{name: "tex/b.JPG", data: []byte("y")},
		entry{name: "notes.txt", data: []byte("z")},
	)
	pkg, err := openPackage(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	assert.Equal(t, "root.usdc", pkg.rootLayer)
	assert.Equal(t, []string{"root.usdc", "sub/extra.usda"}, pkg.layers)
	assert.Equal(t, []string{"tex/a.png", "tex/b.JPG"}, pkg.textures)
}

func TestOpenPackageRejectsNonLayerRoot(t *testing.T) {
	data := buildUSDZ(t, entry{name: "readme.txt", data: []byte("hi")})
	_, err := openPackage(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAsset))
}

func TestOpenPackageRejectsGarbage(t *testing.T) {
	data := []byte("definitely not a zip archive")
	_, err := openPackage(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAsset))
}

func TestPreviewImagePrefersNamedPreview(t *testing.T) {
	data := buildUSDZ(t,
		entry{name: "scene.usda", data: []byte(sceneLayer)},
		entry{name: "big.png", data: pngBytes(t, 64, 64, color.White)},
		entry{name: "Thumbnail.png", data: pngBytes(t, 4, 4, color.Black)},
	)
	pkg, err := openPackage(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	f, ok := pkg.previewImage()
	require.True(t, ok)
	assert.Equal(t, "Thumbnail.png", f.Name)
}

func TestPreviewImageFallsBackToLargestTexture(t *testing.T) {
	data := buildUSDZ(t,
		entry{name: "scene.usda", data: []byte(sceneLayer)},
		entry{name: "small.png", data: pngBytes(t, 2, 2, color.White)},
		entry{name: "large.png", data: pngBytes(t, 64, 64, color.Gray{Y: 90})},
	)
	pkg, err := openPackage(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	f, ok := pkg.previewImage()
	require.True(t, ok)
	assert.Equal(t, "large.png", f.Name)
}

func TestPreviewImageMissing(t *testing.T) {
	data := buildUSDZ(t, entry{name: "scene.usda", data: []byte(sceneLayer)})
	pkg, err := openPackage(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	_, ok := pkg.previewImage()
	assert.False(t, ok)
}

package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/alfianlosari/arinventory/pkg/config"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

const (
	defaultThumbnailSize  = 300
	defaultThumbnailScale = 2.0
	defaultJPEGQuality    = 50
)

// Thumbnailer derives a JPEG preview from model bytes.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, id string, model []byte) ([]byte, error)
}

// USDZThumbnailer renders thumbnails from the preview imagery embedded in a
// USDZ package: a square crop resized to Size*Scale pixels.
type USDZThumbnailer struct {
	CacheDir string
	Size     int
	Scale    float64
	Quality  int
}

// NewUSDZThumbnailer maps asset config onto a thumbnailer. Quality is given
// as a 0..1 compression factor.
func NewUSDZThumbnailer(cfg config.AssetsConfig) *USDZThumbnailer {
	return &USDZThumbnailer{
		CacheDir: cfg.CacheDir,
		Size:     cfg.ThumbnailSize,
		Scale:    cfg.ThumbnailScale,
		Quality:  int(math.Round(cfg.ThumbnailQuality * 100)),
	}
}

// Pixels is the edge length of generated thumbnails.
func (t *USDZThumbnailer) Pixels() int {
	size := t.Size
	if size <= 0 {
		size = defaultThumbnailSize
	}
	scale := t.Scale
	if scale <= 0 {
		scale = defaultThumbnailScale
	}
	return int(math.Round(float64(size) * scale))
}

func (t *USDZThumbnailer) quality() int {
	if t.Quality <= 0 || t.Quality > 100 {
		return defaultJPEGQuality
	}
	return t.Quality
}

// Thumbnail stages the model as a temp_{id}_*.usdz file in the cache
// directory, reads its preview image and encodes the JPEG. Each call stages
// its own file, so concurrent uploads of one item do not share it.
func (t *USDZThumbnailer) Thumbnail(ctx context.Context, id string, model []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := cacheDirOrDefault(t.CacheDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "prepare thumbnail workspace")
	}
	f, err := os.CreateTemp(dir, "temp_"+cacheNameEscaper.Replace(id)+"_*.usdz")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "stage model for thumbnail")
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()
	if _, err := f.Write(model); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "stage model for thumbnail")
	}
	info, err := f.Stat()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "stat staged model")
	}

	pkg, err := openPackage(f, info.Size())
	if err != nil {
		return nil, err
	}
	entry, ok := pkg.previewImage()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeAsset, "usdz package has no preview imagery")
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "open preview image")
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, fmt.Sprintf("decode preview image %s", entry.Name))
	}
	return t.encode(img)
}

func (t *USDZThumbnailer) encode(img image.Image) ([]byte, error) {
	px := t.Pixels()
	thumb := imaging.Fill(img, px, px, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(t.quality())); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "encode thumbnail")
	}
	return buf.Bytes(), nil
}

func cacheDirOrDefault(dir string) string {
	if dir != "" {
		return dir
	}
	if userCache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(userCache, "arinventory")
	}
	return filepath.Join(os.TempDir(), "arinventory")
}

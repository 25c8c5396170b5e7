// Package assets moves 3D models in and out of the blob store: upload with a
// derived thumbnail, deletion, local caching and renderable loading.
package assets

import (
	"context"
	"time"

	"github.com/alfianlosari/arinventory/internal/items"
	"github.com/alfianlosari/arinventory/pkg/blobstore"
	"github.com/alfianlosari/arinventory/pkg/enums"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/metrics"
)

// UploadProgress is one tick of either upload stage.
type UploadProgress struct {
	Stage enums.UploadStage `json:"stage"`
	blobstore.Progress
}

// UploadResult carries the resolved download URLs. ThumbnailURL is empty when
// no thumbnail could be produced.
type UploadResult struct {
	ModelURL     string `json:"modelUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

type Options struct {
	Thumbnailer Thumbnailer
	Logger      *logger.Logger
	Metrics     *metrics.AssetMetrics
}

type Pipeline struct {
	blobs   blobstore.Store
	thumbs  Thumbnailer
	logg    *logger.Logger
	metrics *metrics.AssetMetrics
}

func NewPipeline(blobs blobstore.Store, opts Options) (*Pipeline, error) {
	if blobs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "blob store is required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	thumbs := opts.Thumbnailer
	if thumbs == nil {
		thumbs = &USDZThumbnailer{}
	}
	return &Pipeline{blobs: blobs, thumbs: thumbs, logg: logg, metrics: opts.Metrics}, nil
}

// UploadModel stores the model, then tries to derive and store its
// thumbnail. Thumbnail failures leave ThumbnailURL empty and are not errors.
// The item document is not touched.
func (p *Pipeline) UploadModel(ctx context.Context, id string, data []byte, onProgress func(UploadProgress)) (UploadResult, error) {
	if id == "" {
		return UploadResult{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	ctx = p.logg.WithOperation(p.logg.WithItemID(ctx, id), "model.upload")

	modelURL, err := p.put(ctx, enums.UploadStageModel, items.ModelPath(id), items.ModelContentType, data, onProgress)
	if err != nil {
		return UploadResult{}, err
	}
	result := UploadResult{ModelURL: modelURL}

	thumb, err := p.thumbs.Thumbnail(ctx, id, data)
	if err != nil {
		p.metrics.IncThumbnailSkipped()
		p.logg.WarnErr(ctx, "thumbnail generation failed", err)
		return result, nil
	}

	thumbURL, err := p.put(ctx, enums.UploadStageThumbnail, items.ThumbnailPath(id), items.ThumbnailContentType, thumb, onProgress)
	if err != nil {
		p.metrics.IncThumbnailSkipped()
		p.logg.WarnErr(p.logg.WithBlobPath(ctx, items.ThumbnailPath(id)), "thumbnail upload failed", err)
		return result, nil
	}
	result.ThumbnailURL = thumbURL
	return result, nil
}

func (p *Pipeline) put(ctx context.Context, stage enums.UploadStage, path, contentType string, data []byte, onProgress func(UploadProgress)) (string, error) {
	start := time.Now()
	err := p.blobs.Put(ctx, path, contentType, data, func(prog blobstore.Progress) {
		if onProgress != nil {
			onProgress(UploadProgress{Stage: stage, Progress: prog})
		}
	})
	if err != nil {
		p.metrics.IncUploadFailure(stage.String())
		return "", pkgerrors.Storage(err, "upload "+path)
	}
	p.metrics.ObserveUpload(stage.String(), len(data), time.Since(start))

	url, err := p.blobs.DownloadURL(ctx, path)
	if err != nil {
		return "", pkgerrors.Storage(err, "resolve download url for "+path)
	}
	return url, nil
}

// DeleteModel removes the model blob, surfacing its failure, then the
// thumbnail on a best-effort basis.
func (p *Pipeline) DeleteModel(ctx context.Context, id string) error {
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	ctx = p.logg.WithOperation(p.logg.WithItemID(ctx, id), "model.delete")

	if err := p.blobs.Delete(ctx, items.ModelPath(id)); err != nil {
		return pkgerrors.Storage(err, "delete "+items.ModelPath(id))
	}
	if err := p.blobs.Delete(ctx, items.ThumbnailPath(id)); err != nil {
		p.logg.WarnErr(p.logg.WithBlobPath(ctx, items.ThumbnailPath(id)), "thumbnail delete failed", err)
	}
	return nil
}

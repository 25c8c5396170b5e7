package enums

// UploadStage names the blob being pushed by the asset pipeline.
type UploadStage string

const (
	UploadStageModel     UploadStage = "model"
	UploadStageThumbnail UploadStage = "thumbnail"
)

func (s UploadStage) String() string {
	return string(s)
}

// LoadingState maps an upload stage onto the form loading state it drives.
func (s UploadStage) LoadingState() LoadingState {
	switch s {
	case UploadStageThumbnail:
		return LoadingStateUploadingThumbnail
	default:
		return LoadingStateUploadingModel
	}
}

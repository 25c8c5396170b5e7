package enums

import "fmt"

// LoadingState describes what an item form is busy doing.
type LoadingState string

const (
	LoadingStateNone               LoadingState = "none"
	LoadingStateSavingItem         LoadingState = "saving_item"
	LoadingStateUploadingModel     LoadingState = "uploading_model"
	LoadingStateUploadingThumbnail LoadingState = "uploading_thumbnail"
	LoadingStateDeletingModel      LoadingState = "deleting_model"
	LoadingStateDeletingItem       LoadingState = "deleting_item"
)

var validLoadingStates = []LoadingState{
	LoadingStateNone,
	LoadingStateSavingItem,
	LoadingStateUploadingModel,
	LoadingStateUploadingThumbnail,
	LoadingStateDeletingModel,
	LoadingStateDeletingItem,
}

// String returns the literal string for the state.
func (s LoadingState) String() string {
	return string(s)
}

// IsValid reports whether the state is known.
func (s LoadingState) IsValid() bool {
	for _, candidate := range validLoadingStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsBusy reports whether an operation is in flight.
func (s LoadingState) IsBusy() bool {
	return s != LoadingStateNone && s != ""
}

// ParseLoadingState converts raw input into a LoadingState.
func ParseLoadingState(value string) (LoadingState, error) {
	for _, candidate := range validLoadingStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loading state %q", value)
}

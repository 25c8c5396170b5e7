package enums

// DisplayState is the lifecycle of the asset shown by the spatial viewer.
type DisplayState string

const (
	DisplayStateEmpty   DisplayState = "empty"
	DisplayStateLoading DisplayState = "loading"
	DisplayStateReady   DisplayState = "ready"
	DisplayStateFailed  DisplayState = "failed"
)

func (s DisplayState) String() string {
	return string(s)
}

// HasEntity reports whether the state carries a renderable.
func (s DisplayState) HasEntity() bool {
	return s == DisplayStateReady
}

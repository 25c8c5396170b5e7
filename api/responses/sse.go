package responses

import (
	"encoding/json"
	"fmt"
	"net/http"

	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

// EventStream writes server-sent events.
type EventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEventStream sends the event-stream headers. It fails when the writer
// cannot flush.
func NewEventStream(w http.ResponseWriter) (*EventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &EventStream{w: w, flusher: flusher}, nil
}

// Send writes one event with a JSON payload.
func (s *EventStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendError writes an error event using the error envelope.
func (s *EventStream) SendError(err error) error {
	_, payload := errorPayload(err)
	return s.Send("error", payload.Error)
}

// Comment writes a keep-alive comment line.
func (s *EventStream) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

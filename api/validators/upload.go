package validators

import (
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

// ReadBody reads the raw request body up to max bytes. max <= 0 disables the limit.
func ReadBody(w http.ResponseWriter, r *http.Request, max int64) ([]byte, error) {
	body := r.Body
	if max > 0 {
		body = http.MaxBytesReader(w, r.Body, max)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload exceeds maximum size").
				WithDetails(map[string]any{"maxBytes": tooLarge.Limit})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "could not read request body")
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request body is empty")
	}
	return data, nil
}

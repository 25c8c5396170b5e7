package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		detailsOK bool
		expose    bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true, expose: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", expose: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error"},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", detailsOK: true},
		{code: CodePersistence, status: http.StatusBadGateway, publicMsg: "document store operation failed", detailsOK: true, expose: true},
		{code: CodeStorage, status: http.StatusBadGateway, publicMsg: "blob store operation failed", detailsOK: true, expose: true},
		{code: CodeDecode, status: http.StatusInternalServerError, publicMsg: "malformed document", detailsOK: true, expose: true},
		{code: CodeAsset, status: http.StatusUnprocessableEntity, publicMsg: "asset could not be processed", detailsOK: true, expose: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		assert.Equal(t, tt.status, meta.HTTPStatus, "status for %s", tt.code)
		assert.Equal(t, tt.publicMsg, meta.PublicMessage, "public message for %s", tt.code)
		assert.False(t, meta.Retryable, "nothing is retried for %s", tt.code)
		assert.Equal(t, tt.detailsOK, meta.DetailsAllowed, "details for %s", tt.code)
		assert.Equal(t, tt.expose, meta.ExposeMessage, "expose for %s", tt.code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("permission denied")
	err := Persistence(cause, "save item")

	require.Equal(t, CodePersistence, err.Code())
	assert.Equal(t, "save item: permission denied", err.Message())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(fmt.Errorf("outer: %w", err), CodePersistence))
	assert.False(t, IsCode(err, CodeStorage))
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.Unwrap())
	assert.Nil(t, As(nil))
}

func TestDumpIncludesChain(t *testing.T) {
	err := fmt.Errorf("handler: %w", Storage(stdErrors.New("bucket missing"), "upload model"))
	dump := Dump(err)

	assert.Equal(t, CodeStorage, dump.Code)
	require.Len(t, dump.Chain, 3)
	assert.Contains(t, dump.Chain[2], "bucket missing")
	assert.Empty(t, dump.MongoCodes)
}

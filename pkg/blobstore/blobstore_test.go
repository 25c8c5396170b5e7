package blobstore

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgress(t *testing.T) {
	assert.Equal(t, Progress{FractionCompleted: 0.25, TotalBytes: 100, CompletedBytes: 25}, NewProgress(100, 25))
	assert.Equal(t, 1.0, NewProgress(0, 0).FractionCompleted)
	assert.Equal(t, 1.0, NewProgress(10, 20).FractionCompleted)
}

func TestProgressReaderTicksOnEveryRead(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10)
	var ticks []Progress
	r := NewProgressReader(io.LimitReader(bytes.NewReader(data), 10), 10, func(p Progress) {
		ticks = append(ticks, p)
	})

	buf := make([]byte, 4)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	require.Len(t, ticks, 3)
	assert.EqualValues(t, 4, ticks[0].CompletedBytes)
	assert.EqualValues(t, 8, ticks[1].CompletedBytes)
	assert.Equal(t, 1.0, ticks[2].FractionCompleted)
	assert.EqualValues(t, 10, r.Completed())
}

func TestTokenFromURL(t *testing.T) {
	token, ok := TokenFromURL("https://firebasestorage.googleapis.com/v0/b/bucket/o/abc.usdz?alt=media&token=t-1")
	require.True(t, ok)
	assert.Equal(t, "t-1", token)

	_, ok = TokenFromURL("https://example.com/abc.usdz")
	assert.False(t, ok)

	_, ok = TokenFromURL("://bad")
	assert.False(t, ok)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "abc.usdz", FileName("https://firebasestorage.googleapis.com/v0/b/bucket/o/abc.usdz?alt=media&token=t"))
	assert.Equal(t, "abc.usdz", FileName("https://firebasestorage.googleapis.com/v0/b/bucket/o/models%2Fabc.usdz?alt=media"))
	assert.Equal(t, "", FileName("https://example.com/"))
}

func TestNewTokenIsUnique(t *testing.T) {
	assert.NotEqual(t, NewToken(), NewToken())
}

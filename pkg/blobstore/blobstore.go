// Package blobstore describes path-addressed object storage that hands out
// download URLs carrying an access token. Every upload reissues the token.
package blobstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TokenParam is the query parameter download URLs carry their access token in.
const TokenParam = "token"

var ErrNotFound = errors.New("blobstore: object not found")

// Progress is one upload tick.
type Progress struct {
	FractionCompleted float64 `json:"fractionCompleted"`
	TotalBytes        int64   `json:"totalBytes"`
	CompletedBytes    int64   `json:"completedBytes"`
}

// NewProgress derives the completed fraction. An empty payload counts as complete.
func NewProgress(total, completed int64) Progress {
	fraction := 1.0
	if total > 0 {
		fraction = float64(completed) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
	}
	return Progress{FractionCompleted: fraction, TotalBytes: total, CompletedBytes: completed}
}

type ProgressFunc func(Progress)

// Store is implemented by every blob backend.
type Store interface {
	Put(ctx context.Context, path, contentType string, data []byte, onProgress ProgressFunc) error
	DownloadURL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
	Download(ctx context.Context, downloadURL string, w io.Writer) error
	PathFromURL(downloadURL string) (string, error)
	Ping(ctx context.Context) error
}

// ProgressReader reports cumulative progress on every Read the transport makes.
type ProgressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	mu   sync.Mutex
	read int64
}

func NewProgressReader(r io.Reader, total int64, fn ProgressFunc) *ProgressReader {
	return &ProgressReader{r: r, total: total, fn: fn}
}

func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		completed := p.read
		p.mu.Unlock()
		if p.fn != nil {
			p.fn(NewProgress(p.total, completed))
		}
	}
	return n, err
}

// Completed returns the number of bytes consumed so far.
func (p *ProgressReader) Completed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

// NewToken mints a download token.
func NewToken() string {
	return uuid.NewString()
}

// TokenFromURL extracts the access token of a download URL.
func TokenFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	token := u.Query().Get(TokenParam)
	return token, token != ""
}

// FileName returns the last path element of a download URL, unescaped.
func FileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

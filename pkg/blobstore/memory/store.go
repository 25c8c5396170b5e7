// Package memory is an in-process blob store. Download URLs use the
// mem://{bucket}/{path}?token= form.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/alfianlosari/arinventory/pkg/blobstore"
)

const (
	scheme        = "mem"
	defaultBucket = "local"
	chunkSize     = 32 * 1024
)

// Object is a stored blob.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
	Token       string
}

type Store struct {
	bucket string

	mu        sync.RWMutex
	objects   map[string]Object
	failures  map[string]error
	downloads map[string]int
}

func New(bucket string) *Store {
	if strings.TrimSpace(bucket) == "" {
		bucket = defaultBucket
	}
	return &Store{
		bucket:    bucket,
		objects:   map[string]Object{},
		failures:  map[string]error{},
		downloads: map[string]int{},
	}
}

// FailOn makes op ("put", "delete" or "download") on path return err.
// A nil err clears the failure.
func (s *Store) FailOn(op, path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + ":" + path
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

func (s *Store) failure(op, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[op+":"+path]
}

func (s *Store) Put(ctx context.Context, path, contentType string, data []byte, onProgress blobstore.ProgressFunc) error {
	if err := s.failure("put", path); err != nil {
		return err
	}
	var buf bytes.Buffer
	reader := blobstore.NewProgressReader(bytes.NewReader(data), int64(len(data)), onProgress)
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := reader.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{
		Path:        path,
		ContentType: contentType,
		Data:        buf.Bytes(),
		Token:       blobstore.NewToken(),
	}
	return nil
}

func (s *Store) DownloadURL(_ context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return "", blobstore.ErrNotFound
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     s.bucket,
		Path:     "/" + path,
		RawQuery: url.Values{blobstore.TokenParam: {obj.Token}}.Encode(),
	}
	return u.String(), nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	if err := s.failure("delete", path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return blobstore.ErrNotFound
	}
	delete(s.objects, path)
	return nil
}

func (s *Store) Download(_ context.Context, downloadURL string, w io.Writer) error {
	path, err := s.PathFromURL(downloadURL)
	if err != nil {
		return err
	}
	if err := s.failure("download", path); err != nil {
		return err
	}
	token, _ := blobstore.TokenFromURL(downloadURL)

	s.mu.Lock()
	obj, ok := s.objects[path]
	if ok && obj.Token == token {
		s.downloads[path]++
	}
	s.mu.Unlock()
	if !ok || obj.Token != token {
		return blobstore.ErrNotFound
	}
	_, err = w.Write(obj.Data)
	return err
}

func (s *Store) PathFromURL(downloadURL string) (string, error) {
	u, err := url.Parse(downloadURL)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	if u.Scheme != scheme || u.Host != s.bucket {
		return "", fmt.Errorf("download url %q does not belong to bucket %s", downloadURL, s.bucket)
	}
	path := strings.TrimPrefix(u.Path, "/")
	if path == "" {
		return "", fmt.Errorf("download url %q has no object path", downloadURL)
	}
	return path, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// Object returns a copy of the blob stored at path.
func (s *Store) Object(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if ok {
		obj.Data = bytes.Clone(obj.Data)
	}
	return obj, ok
}

// Downloads reports how many successful downloads path has served.
func (s *Store) Downloads(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloads[path]
}

// Package gcs talks to Cloud Storage for Firebase through its REST API. Download
// URLs are the Firebase form: {base}/v0/b/{bucket}/o/{path}?alt=media&token={token}.
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alfianlosari/arinventory/pkg/blobstore"
	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

const (
	pingTimeout         = 5 * time.Second
	downloadTokensField = "firebaseStorageDownloadTokens"
)

type Client struct {
	httpClient  *http.Client
	baseURL     string
	bucket      string
	tokenSource *tokenSource
}

type objectMetadata struct {
	Name           string `json:"name"`
	Bucket         string `json:"bucket"`
	ContentType    string `json:"contentType"`
	Size           string `json:"size"`
	DownloadTokens string `json:"downloadTokens"`
}

// NewClient builds a client and verifies the bucket is reachable. With the
// emulator enabled it targets the local emulator and skips Google credentials.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, emu config.EmulatorConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	httpClient := &http.Client{}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	var ts *tokenSource
	var err error
	switch {
	case emu.Enabled:
		baseURL = emu.StorageBaseURL()
		ts = newStaticTokenSource(emulatorToken)
	case gcp.CredentialsJSON != "":
		ts, err = newServiceAccountTokenSource(httpClient, gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		raw, readErr := os.ReadFile(gcp.ApplicationCredentials)
		if readErr != nil {
			return nil, fmt.Errorf("reading credentials file: %w", readErr)
		}
		ts, err = newServiceAccountTokenSource(httpClient, string(raw))
	default:
		ts = newMetadataTokenSource(httpClient)
	}
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		return nil, errors.New("gcs base url is required")
	}

	client := &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		bucket:      cfg.BucketName,
		tokenSource: ts,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object in the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokenSource == nil {
		return errors.New("gcs client not initialized")
	}
	if c.bucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, c.bucketURL()+"?maxResults=1", nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError("gcs object check failed", resp)
	}
	return nil
}

// Put uploads data as a multipart request and assigns a fresh download token.
// Progress ticks follow the transport consuming the payload.
func (c *Client) Put(ctx context.Context, path, contentType string, data []byte, onProgress blobstore.ProgressFunc) error {
	body, bodyType, length, err := multipartBody(path, contentType, blobstore.NewToken(), data, onProgress)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, c.bucketURL()+"?name="+url.QueryEscape(path), body, func(req *http.Request) {
		req.ContentLength = length
		req.Header.Set("Content-Type", bodyType)
		req.Header.Set("X-Goog-Upload-Protocol", "multipart")
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError("upload "+path, resp)
	}
	return nil
}

// DownloadURL reads the object metadata and builds a URL from its first download token.
func (c *Client) DownloadURL(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.objectURL(path), nil, nil)
	if err != nil {
		return "", fmt.Errorf("metadata %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", blobstore.ErrNotFound
	default:
		return "", statusError("metadata "+path, resp)
	}

	var meta objectMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode metadata %s: %w", path, err)
	}
	token, _, _ := strings.Cut(meta.DownloadTokens, ",")
	if token = strings.TrimSpace(token); token == "" {
		return "", fmt.Errorf("object %s has no download token", path)
	}
	q := url.Values{}
	q.Set("alt", "media")
	q.Set(blobstore.TokenParam, token)
	return c.objectURL(path) + "?" + q.Encode(), nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.objectURL(path), nil, nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return blobstore.ErrNotFound
	default:
		return statusError("delete "+path, resp)
	}
}

// Download streams the object behind a tokenized download URL into w.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) error {
	if _, err := c.PathFromURL(downloadURL); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusForbidden:
		return blobstore.ErrNotFound
	default:
		return statusError("download", resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return nil
}

// PathFromURL maps a download URL of this bucket back to its object path.
// The URL must name the client's own scheme and host.
func (c *Client) PathFromURL(downloadURL string) (string, error) {
	u, err := url.Parse(downloadURL)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("download url %q is not served by %s", downloadURL, c.baseURL)
	}
	prefix := strings.TrimRight(base.Path, "/") + "/v0/b/" + c.bucket + "/o/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", fmt.Errorf("download url %q does not belong to bucket %s", downloadURL, c.bucket)
	}
	path := strings.TrimPrefix(u.Path, prefix)
	if path == "" {
		return "", fmt.Errorf("download url %q has no object path", downloadURL)
	}
	return path, nil
}

func (c *Client) bucketURL() string {
	return c.baseURL + "/v0/b/" + url.PathEscape(c.bucket) + "/o"
}

func (c *Client) objectURL(path string) string {
	return c.bucketURL() + "/" + url.PathEscape(path)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, prepare func(*http.Request)) (*http.Response, error) {
	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if prepare != nil {
		prepare(req)
	}
	return c.httpClient.Do(req)
}

// multipartBody assembles a multipart/related upload. Only the payload bytes
// are counted towards progress.
func multipartBody(path, contentType, token string, data []byte, onProgress blobstore.ProgressFunc) (io.Reader, string, int64, error) {
	var head bytes.Buffer
	mw := multipart.NewWriter(&head)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=utf-8"}})
	if err != nil {
		return nil, "", 0, err
	}
	meta := map[string]any{
		"name":        path,
		"contentType": contentType,
		"metadata":    map[string]string{downloadTokensField: token},
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", 0, err
	}
	if _, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {contentType}}); err != nil {
		return nil, "", 0, err
	}
	prefix := bytes.Clone(head.Bytes())

	head.Reset()
	if err := mw.Close(); err != nil {
		return nil, "", 0, err
	}
	suffix := bytes.Clone(head.Bytes())

	body := io.MultiReader(
		bytes.NewReader(prefix),
		blobstore.NewProgressReader(bytes.NewReader(data), int64(len(data)), onProgress),
		bytes.NewReader(suffix),
	)
	length := int64(len(prefix) + len(data) + len(suffix))
	return body, "multipart/related; boundary=" + mw.Boundary(), length, nil
}

func statusError(msg string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(b) > 0 {
		return fmt.Errorf("%s: %s: %s", msg, resp.Status, strings.TrimSpace(string(b)))
	}
	return fmt.Errorf("%s: %s", msg, resp.Status)
}

package controllers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/items"
	blobmemory "github.com/alfianlosari/arinventory/pkg/blobstore/memory"
	docmemory "github.com/alfianlosari/arinventory/pkg/docstore/memory"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/types"
)

type stubThumbnailer struct{}

func (stubThumbnailer) Thumbnail(context.Context, string, []byte) ([]byte, error) {
	return []byte("jpeg"), nil
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type fixture struct {
	docs   *docmemory.Store
	blobs  *blobmemory.Store
	repo   *items.Repository
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logg := logger.Nop()
	docs := docmemory.New(docmemory.WithClock(steppingClock()))
	t.Cleanup(func() { _ = docs.Close() })
	blobs := blobmemory.New("bucket")
	repo, err := items.NewRepository(docs, blobs, items.Options{Logger: logg})
	require.NoError(t, err)
	pipeline, err := assets.NewPipeline(blobs, assets.Options{Thumbnailer: stubThumbnailer{}, Logger: logg})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/items", ListItems(repo, logg))
	r.Post("/items", CreateItem(repo, pipeline, logg))
	r.Get("/items/stream", StreamItems(repo, logg))
	r.Get("/items/page", PageItems(repo, logg))
	r.Get("/items/{itemId}", GetItem(repo, logg))
	r.Put("/items/{itemId}", UpdateItem(repo, pipeline, logg))
	r.Delete("/items/{itemId}", DeleteItem(repo, pipeline, logg))
	r.Post("/items/{itemId}/quantity", AdjustQuantity(repo, pipeline, logg))
	r.Get("/items/{itemId}/stream", StreamItem(repo, logg))
	r.Put("/items/{itemId}/model", UploadModel(repo, pipeline, 1024, logg))
	r.Delete("/items/{itemId}/model", DeleteModel(repo, pipeline, logg))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{docs: docs, blobs: blobs, repo: repo, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	return env.Data
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	return env.Error.Code
}

func (f *fixture) seed(t *testing.T, name string, quantity int) items.InventoryItem {
	t.Helper()
	item := items.NewItem(name, quantity)
	require.NoError(t, f.repo.Save(context.Background(), item))
	return item
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive("test").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-ARInventory-Env"))
}

func TestHealthReady(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthReady("test", stubPinger{}, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady("test", stubPinger{err: errors.New("mongo down")}, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), decodeErrorCode(t, rec.Body.Bytes()))
}

func TestCreateAndGetItem(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/items", []byte(`{"name":"  Chair ","quantity":3}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decodeData[items.InventoryItem](t, body)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Chair", created.Name)
	assert.Equal(t, 3, created.Quantity)
	assert.Nil(t, created.ModelLink)
	assert.Nil(t, created.ThumbnailLink)
	assert.NotNil(t, created.CreatedAt)

	resp, body = f.do(t, http.MethodGet, "/items/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decodeData[items.InventoryItem](t, body).ID)
}

func TestCreateItemValidation(t *testing.T) {
	f := newFixture(t)

	cases := map[string]string{
		"missing name":      `{"quantity":1}`,
		"negative quantity": `{"name":"Chair","quantity":-1}`,
		"blank name":        `{"name":"   ","quantity":1}`,
		"unknown field":     `{"name":"Chair","price":10}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/items", []byte(payload))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, body))
		})
	}

	list, err := f.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetMissingItem(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/items/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(pkgerrors.CodeNotFound), decodeErrorCode(t, body))
}

func TestListItemsInCreationOrder(t *testing.T) {
	f := newFixture(t)
	first := f.seed(t, "A", 1)
	second := f.seed(t, "B", 2)

	resp, body := f.do(t, http.MethodGet, "/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeData[[]items.InventoryItem](t, body)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestPageItems(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		ids = append(ids, f.seed(t, name, 1).ID)
	}

	resp, body := f.do(t, http.MethodGet, "/items/page?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	first := decodeData[types.Page[items.InventoryItem]](t, body)
	require.Len(t, first.Items, 2)
	assert.Equal(t, ids[:2], []string{first.Items[0].ID, first.Items[1].ID})
	require.NotEmpty(t, first.NextCursor)

	resp, body = f.do(t, http.MethodGet, "/items/page?limit=2&cursor="+first.NextCursor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeData[types.Page[items.InventoryItem]](t, body)
	require.Len(t, second.Items, 1)
	assert.Equal(t, ids[2], second.Items[0].ID)
	assert.Empty(t, second.NextCursor)

	resp, _ = f.do(t, http.MethodGet, "/items/page?cursor=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/items/page?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateItemPreservesLinks(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 1).WithLinks("https://blob/m.usdz?token=a", "https://blob/t.jpg?token=b")
	require.NoError(t, f.repo.Save(context.Background(), item))

	resp, body := f.do(t, http.MethodPut, "/items/"+item.ID, []byte(`{"name":"Table","quantity":7}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	updated := decodeData[items.InventoryItem](t, body)
	assert.Equal(t, "Table", updated.Name)
	assert.Equal(t, 7, updated.Quantity)
	require.NotNil(t, updated.ModelLink)
	assert.Equal(t, "https://blob/m.usdz?token=a", *updated.ModelLink)
	require.NotNil(t, updated.ThumbnailLink)
	assert.Equal(t, "https://blob/t.jpg?token=b", *updated.ThumbnailLink)
}

func TestAdjustQuantityFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 0)

	resp, body := f.do(t, http.MethodPost, "/items/"+item.ID+"/quantity", []byte(`{"delta":-1}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, 0, decodeData[items.InventoryItem](t, body).Quantity)

	resp, body = f.do(t, http.MethodPost, "/items/"+item.ID+"/quantity", []byte(`{"delta":1}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeData[items.InventoryItem](t, body).Quantity)

	resp, _ = f.do(t, http.MethodPost, "/items/"+item.ID+"/quantity", []byte(`{"delta":5}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 1)

	resp, _ := f.do(t, http.MethodDelete, "/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := f.repo.Get(context.Background(), item.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	resp, _ = f.do(t, http.MethodDelete, "/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUploadAndDeleteModel(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 1)

	resp, body := f.do(t, http.MethodPut, "/items/"+item.ID+"/model", bytes.Repeat([]byte("x"), 512))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	uploaded := decodeData[modelUploadResponse](t, body)
	require.NotNil(t, uploaded.Item.ModelLink)
	require.NotNil(t, uploaded.Item.ThumbnailLink)
	assert.Contains(t, *uploaded.Item.ModelLink, items.ModelPath(item.ID))
	assert.Contains(t, *uploaded.Item.ThumbnailLink, items.ThumbnailPath(item.ID))
	assert.Greater(t, uploaded.ProgressTicks, 0)

	_, ok := f.blobs.Object(items.ModelPath(item.ID))
	assert.True(t, ok)

	resp, body = f.do(t, http.MethodDelete, "/items/"+item.ID+"/model", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	cleared := decodeData[items.InventoryItem](t, body)
	assert.Nil(t, cleared.ModelLink)
	assert.Nil(t, cleared.ThumbnailLink)

	_, ok = f.blobs.Object(items.ModelPath(item.ID))
	assert.False(t, ok)
}

func TestUploadModelRejectsOversizedBody(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 1)

	resp, body := f.do(t, http.MethodPut, "/items/"+item.ID+"/model", bytes.Repeat([]byte("x"), 2048))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, body))

	stored, err := f.repo.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ModelLink)
}

func TestUploadModelSurfacesStoreFailure(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 1)
	f.blobs.FailOn("put", items.ModelPath(item.ID), errors.New("quota exceeded"))

	resp, body := f.do(t, http.MethodPut, "/items/"+item.ID+"/model", []byte("usdz"))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, string(pkgerrors.CodeStorage), decodeErrorCode(t, body))
	assert.Contains(t, string(body), "quota exceeded")
}

func TestDeleteModelFailureKeepsLinks(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 1).WithLinks("https://blob/m.usdz?token=a", "https://blob/t.jpg?token=b")
	require.NoError(t, f.repo.Save(context.Background(), item))

	resp, _ := f.do(t, http.MethodDelete, "/items/"+item.ID+"/model", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	stored, err := f.repo.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ModelLink)
	assert.NotNil(t, stored.ThumbnailLink)
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, scanner *bufio.Scanner, out chan<- sseEvent) {
	t.Helper()
	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.name != "":
			out <- ev
			ev = sseEvent{}
		}
	}
	close(out)
}

func openStream(t *testing.T, f *fixture, path string) <-chan sseEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 16)
	go readEvents(t, bufio.NewScanner(resp.Body), events)
	return events
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return sseEvent{}
}

func TestStreamItemsSendsSnapshots(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", 1)

	events := openStream(t, f, "/items/stream")
	ev := nextEvent(t, events)
	assert.Equal(t, eventSnapshot, ev.name)
	var list []items.InventoryItem
	require.NoError(t, json.Unmarshal([]byte(ev.data), &list))
	assert.Len(t, list, 1)

	f.seed(t, "B", 2)
	ev = nextEvent(t, events)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &list))
	assert.Len(t, list, 2)
}

func TestStreamItemEndsAfterDeletion(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, "Chair", 1)

	events := openStream(t, f, "/items/"+item.ID+"/stream")
	ev := nextEvent(t, events)
	assert.Equal(t, eventItem, ev.name)

	require.NoError(t, f.repo.Delete(context.Background(), item.ID))
	ev = nextEvent(t, events)
	assert.Equal(t, eventDeleted, ev.name)

	select {
	case _, ok := <-events:
		assert.False(t, ok, "expected stream to close after deleted")
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after deleted")
	}

	require.Eventually(t, func() bool { return f.docs.ActiveWatchers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type cancelledSub struct{}

func (cancelledSub) Cancel() {}

// recreatedItem reports a deletion immediately followed by a re-create.
type recreatedItem struct {
	ItemService
}

func (recreatedItem) ListenToItem(_ context.Context, id string, obs items.ItemObserver) (items.Subscription, error) {
	obs.OnDeleted()
	obs.OnUpdate(items.InventoryItem{ID: id, Name: "again"})
	return cancelledSub{}, nil
}

func TestStreamItemDeletionSurvivesLaterUpdate(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/items/{itemId}/stream", StreamItem(recreatedItem{}, logger.Nop()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/X/stream", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "event: deleted")
	assert.NotContains(t, body, "event: item")
	assert.NotContains(t, body, "again")
}

func TestLatestKeepsNewestValue(t *testing.T) {
	q := newLatest[int]()
	q.push(1)
	q.push(2)
	q.push(3)
	assert.Equal(t, 3, <-q.ch)
	select {
	case v := <-q.ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

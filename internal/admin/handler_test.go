package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mtgdata/internal/archive"
	"mtgdata/internal/catalog"
	"mtgdata/internal/events"
	"mtgdata/pkg/database"
)

type fakeCatalog struct {
	initCalls   int
	initErr     error
	symbols     json.RawMessage
	reopenCalls int
}

func (f *fakeCatalog) Initialize(context.Context) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeCatalog) Status() catalog.Status {
	return catalog.Status{Loaded: f.initCalls > 0 && f.initErr == nil}
}

func (f *fakeCatalog) SetSymbols(s json.RawMessage) { f.symbols = s }

func (f *fakeCatalog) Reopen(release func() error) error {
	f.reopenCalls++
	return release()
}

type fakeArchive struct {
	remote      *time.Time
	remoteErr   error
	downloadErr error
	symbolsErr  error
}

func (f *fakeArchive) RemoteLastModified(context.Context) (*time.Time, error) {
	return f.remote, f.remoteErr
}

func (f *fakeArchive) LocalLastModified() *time.Time { return nil }

func (f *fakeArchive) DownloadCardData(context.Context) (*archive.DownloadResult, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return &archive.DownloadResult{Files: []string{"data/AllPrintings.sqlite"}, Bytes: 3}, nil
}

func (f *fakeArchive) LoadSymbols(context.Context) (json.RawMessage, error) {
	if f.symbolsErr != nil {
		return nil, f.symbolsErr
	}
	return json.RawMessage(`[]`), nil
}

func (f *fakeArchive) IsRunning() bool { return false }

type fakeSources struct{ closed int }

func (f *fakeSources) Files() []database.FileStatus {
	return []database.FileStatus{{Kind: database.KindCatalog, Path: "data/AllPrintings.sqlite"}}
}

func (f *fakeSources) Close() error {
	f.closed++
	return nil
}

type recorder struct{ events []events.Event }

func (r *recorder) Publish(ev events.Event) { r.events = append(r.events, ev) }

type fixture struct {
	catalog *fakeCatalog
	archive *fakeArchive
	sources *fakeSources
	events  *recorder
	router  *gin.Engine
}

func newFixture() *fixture {
	f := &fixture{
		catalog: &fakeCatalog{},
		archive: &fakeArchive{},
		sources: &fakeSources{},
		events:  &recorder{},
	}
	gin.SetMode(gin.TestMode)
	f.router = gin.New()
	h := NewHandler(f.catalog, f.archive, f.sources, f.events, time.Minute, zerolog.Nop())
	h.RegisterRoutes(f.router.Group("/admin"))
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestStatus(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/admin/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["files"] == nil || body["catalog"] == nil {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestLastModified(t *testing.T) {
	f := newFixture()
	mod := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f.archive.remote = &mod

	var body map[string]any
	if err := json.Unmarshal(f.do(http.MethodGet, "/admin/last-modified").Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["lastModifiedRemote"] != "2024-06-01T00:00:00Z" {
		t.Errorf("remote = %v", body["lastModifiedRemote"])
	}
	if v, ok := body["lastModifiedLocal"]; !ok || v != nil {
		t.Errorf("local = %v, want null", v)
	}

	f.archive.remoteErr = errors.New("offline")
	if w := f.do(http.MethodGet, "/admin/last-modified"); w.Code != http.StatusOK {
		t.Errorf("remote failure should still answer 200, got %d", w.Code)
	}
}

func TestDownloadClosesSourcesAndPublishes(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/admin/download"); w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body)
	}
	if f.sources.closed != 1 {
		t.Errorf("sources closed %d times, want 1", f.sources.closed)
	}
	if f.catalog.reopenCalls != 1 {
		t.Errorf("reopen calls = %d, want 1", f.catalog.reopenCalls)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != events.TypeArchiveDownloaded {
		t.Errorf("events = %+v", f.events.events)
	}
	if f.catalog.initCalls != 0 {
		t.Error("catalog reloaded without reload=true")
	}
}

func TestDownloadWithReload(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/admin/download?reload=true"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.catalog.initCalls != 1 {
		t.Errorf("initialize calls = %d, want 1", f.catalog.initCalls)
	}

	f.catalog.initErr = errors.New("corrupt")
	if w := f.do(http.MethodPost, "/admin/download?reload=1"); w.Code != http.StatusInternalServerError {
		t.Errorf("failed reload status = %d, want 500", w.Code)
	}
}

func TestDownloadErrors(t *testing.T) {
	f := newFixture()

	f.archive.downloadErr = archive.ErrDownloadInProgress
	if w := f.do(http.MethodPost, "/admin/download"); w.Code != http.StatusConflict {
		t.Errorf("in progress status = %d, want 409", w.Code)
	}

	f.archive.downloadErr = errors.New("network down")
	if w := f.do(http.MethodPost, "/admin/download"); w.Code != http.StatusInternalServerError {
		t.Errorf("failure status = %d, want 500", w.Code)
	}
	if f.sources.closed != 0 {
		t.Error("sources closed after a failed download")
	}
}

func TestLoadData(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/admin/load-data"); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	f.catalog.initErr = errors.New("catalog missing")
	if w := f.do(http.MethodPost, "/admin/load-data"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestReloadSymbols(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/admin/symbols/reload"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if string(f.catalog.symbols) != "[]" {
		t.Errorf("symbols = %s", f.catalog.symbols)
	}

	f.archive.symbolsErr = errors.New("scryfall down")
	if w := f.do(http.MethodPost, "/admin/symbols/reload"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

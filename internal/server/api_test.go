package server

import (
	"bytes"
	"context"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/engine"
	"github.com/tartampluch/card-countdown/internal/store"
	"github.com/zalando/go-keyring"
	"golang.org/x/image/bmp"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeLoop struct {
	sighting    *engine.Sighting
	status      engine.Status
	invalidated []string
}

func (f *fakeLoop) LastSighting() (engine.Sighting, bool) {
	if f.sighting == nil {
		return engine.Sighting{}, false
	}
	return *f.sighting, true
}

func (f *fakeLoop) Status() engine.Status { return f.status }

func (f *fakeLoop) Invalidate(uid string) { f.invalidated = append(f.invalidated, uid) }

type staticFetcher struct {
	body string
	url  string
}

func (f *staticFetcher) Fetch(_ context.Context, url, _, _ string) (io.ReadCloser, error) {
	f.url = url
	return io.NopCloser(strings.NewReader(f.body)), nil
}

type harness struct {
	srv     *Server
	store   *store.Store
	loop    *fakeLoop
	fetcher *staticFetcher
	images  string
	handler http.Handler
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, config.StoreFileName), capacity)
	require.NoError(t, err)

	h := &harness{store: st, loop: &fakeLoop{}, fetcher: &staticFetcher{}, images: filepath.Join(dir, config.ImagesDirName)}
	h.srv = New(Deps{
		Store:      st,
		Loop:       h.loop,
		Clock:      fixedClock{testNow},
		Location:   time.UTC,
		Fetcher:    h.fetcher,
		ImagesDir:  h.images,
		ScanWindow: config.DefaultScanWindow,
	})
	h.handler = h.srv.Routes()
	return h
}

func (h *harness) do(t *testing.T, method, path, contentType string, body io.Reader) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(config.HeaderContentType, contentType)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	resp := w.Result()
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, string(raw)
}

func (h *harness) doJSON(t *testing.T, method, path, body string) (*http.Response, string) {
	return h.do(t, method, path, config.MimeJSON, strings.NewReader(body))
}

func TestCountdownsCRUD(t *testing.T) {
	h := newHarness(t, 20)

	resp, body := h.doJSON(t, http.MethodGet, config.RouteCountdowns, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, body)

	resp, body = h.doJSON(t, http.MethodPost, config.RouteCountdowns,
		`{"uid":"aabbccdd","name":"Holiday","targetDate":"2025-08-01","active":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"success":true}`, body)

	_, body = h.doJSON(t, http.MethodGet, config.RouteCountdowns, "")
	assert.JSONEq(t, `[{"uid":"AABBCCDD","name":"Holiday","targetDate":"2025-08-01","imagePath":"","active":true}]`, body)

	resp, _ = h.doJSON(t, http.MethodPut, "/api/countdowns/AABBCCDD",
		`{"name":"Holiday 2","targetDate":"2025-08-02","active":false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	rec, ok := h.store.Find("AABBCCDD")
	require.True(t, ok)
	assert.Equal(t, "Holiday 2", rec.Name)
	assert.False(t, rec.Active)

	resp, _ = h.doJSON(t, http.MethodDelete, "/api/countdowns/aabbccdd", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, h.store.Len())
}

func TestCountdownsErrors(t *testing.T) {
	valid := `{"uid":"01020304","name":"A","targetDate":"2025-08-01","active":true}`

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"Invalid JSON", http.MethodPost, config.RouteCountdowns, `{"uid":`, http.StatusBadRequest},
		{"Missing name", http.MethodPost, config.RouteCountdowns, `{"uid":"0A0B","targetDate":"2025-08-01"}`, http.StatusBadRequest},
		{"Invalid date", http.MethodPost, config.RouteCountdowns, `{"uid":"0A0B","name":"X","targetDate":"2025-13-01"}`, http.StatusBadRequest},
		{"Non hex UID", http.MethodPost, config.RouteCountdowns, `{"uid":"CARD-1","name":"X","targetDate":"2025-08-01"}`, http.StatusBadRequest},
		{"Duplicate", http.MethodPost, config.RouteCountdowns, valid, http.StatusConflict},
		{"Capacity", http.MethodPost, config.RouteCountdowns, `{"uid":"0A0B","name":"X","targetDate":"2025-08-01"}`, http.StatusInsufficientStorage},
		{"Update unknown", http.MethodPut, "/api/countdowns/FFFF", `{"name":"X","targetDate":"2025-08-01"}`, http.StatusNotFound},
		{"Update changes UID", http.MethodPut, "/api/countdowns/01020304", `{"uid":"0A0B","name":"X","targetDate":"2025-08-01"}`, http.StatusBadRequest},
		{"Update bad date", http.MethodPut, "/api/countdowns/01020304", `{"name":"X","targetDate":"01.08.2025"}`, http.StatusBadRequest},
		{"Delete unknown", http.MethodDelete, "/api/countdowns/FFFF", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1)
			require.NoError(t, h.store.Add(engine.Record{UID: "01020304", Name: "A", TargetDate: "2025-08-01", Active: true}))

			resp, body := h.doJSON(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, body)
			assert.Contains(t, body, `"success":false`)
			assert.Contains(t, body, `"error":`)
		})
	}
}

func TestScanCard(t *testing.T) {
	tests := []struct {
		name     string
		sighting *engine.Sighting
		want     string
	}{
		{"Never seen", nil, `{"success":false,"error":"` + config.ErrNoCardSeen + `"}`},
		{"Seen recently", &engine.Sighting{UID: "AABBCCDD", At: testNow.Add(-3 * time.Second)}, `{"success":true,"uid":"AABBCCDD"}`},
		{"Seen too long ago", &engine.Sighting{UID: "AABBCCDD", At: testNow.Add(-11 * time.Second)}, `{"success":false,"error":"` + config.ErrNoCardSeen + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 20)
			h.loop.sighting = tt.sighting

			resp, body := h.doJSON(t, http.MethodGet, config.RouteScanCard, "")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, tt.want, body)
		})
	}
}

func TestWiFi(t *testing.T) {
	h := newHarness(t, 20)

	_, body := h.doJSON(t, http.MethodGet, config.RouteWiFi, "")
	assert.JSONEq(t, `{"ssid":"","hasPassword":false}`, body)

	resp, _ := h.doJSON(t, http.MethodPost, config.RouteWiFi, `{"password":"secret"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.doJSON(t, http.MethodPost, config.RouteWiFi, `{"ssid":"HomeNet","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, config.MsgWiFiSaved)

	_, body = h.doJSON(t, http.MethodGet, config.RouteWiFi, "")
	assert.JSONEq(t, `{"ssid":"HomeNet","hasPassword":true}`, body)
	assert.NotContains(t, body, "secret")
}

func TestStatus(t *testing.T) {
	h := newHarness(t, 20)
	h.loop.status = engine.Status{PresentUID: "AABB", DisplayedUID: "AABB", State: "displaying", LastFrame: "countdown", Renders: 3}
	require.NoError(t, h.store.Add(engine.Record{UID: "AABB", Name: "A", TargetDate: "2025-08-01", Active: true}))

	resp, body := h.doJSON(t, http.MethodGet, config.RouteStatus, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got statusReply
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, config.Version, got.Version)
	assert.Equal(t, "AABB", got.PresentUID)
	assert.Equal(t, "displaying", got.State)
	assert.Equal(t, 3, got.Renders)
	assert.Equal(t, 1, got.Countdowns)
	assert.Equal(t, 20, got.Capacity)
}

func TestRestart(t *testing.T) {
	h := newHarness(t, 20)
	resp, _ := h.doJSON(t, http.MethodPost, config.RouteRestart, "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	var called atomic.Bool
	h.srv.deps.Restart = func() { called.Store(true) }

	resp, body := h.doJSON(t, http.MethodPost, config.RouteRestart, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"success":true`)
	assert.Eventually(t, called.Load, time.Second, 10*time.Millisecond)
}

func multipartBody(t *testing.T, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(config.FormParamFile, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func testBMP(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestImages(t *testing.T) {
	h := newHarness(t, 20)

	_, body := h.doJSON(t, http.MethodGet, config.RouteImages, "")
	assert.JSONEq(t, `[]`, body, "missing directory lists as empty")

	payload, ct := multipartBody(t, "cake.bmp", testBMP(t))
	resp, body := h.do(t, http.MethodPost, config.RouteUploadImage, ct, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"success":true,"name":"cake.bmp","path":"/images/cake.bmp"}`, body)
	assert.FileExists(t, filepath.Join(h.images, "cake.bmp"))

	payload, ct = multipartBody(t, "../evil name.bmp", testBMP(t))
	resp, body = h.do(t, http.MethodPost, config.RouteUploadImage, ct, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotContains(t, body, "evil")

	payload, ct = multipartBody(t, "notes.bmp", []byte("not an image"))
	resp, _ = h.do(t, http.MethodPost, config.RouteUploadImage, ct, payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, config.RouteUploadImage, config.MimeJSON, strings.NewReader("{}"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = h.doJSON(t, http.MethodGet, config.RouteImages, "")
	var list []imageInfo
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	assert.Len(t, list, 2)

	resp, _ = h.do(t, http.MethodGet, "/images/cake.bmp", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.doJSON(t, http.MethodDelete, "/api/images/cake.bmp", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := os.Stat(filepath.Join(h.images, "cake.bmp"))
	assert.True(t, os.IsNotExist(err))

	resp, _ = h.doJSON(t, http.MethodDelete, "/api/images/cake.bmp", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImages_ReplacingRedrawsUsers(t *testing.T) {
	h := newHarness(t, 20)
	require.NoError(t, h.store.Add(engine.Record{
		UID: "AABBCCDD", Name: "Cake", TargetDate: "2025-08-01", ImagePath: "/images/cake.bmp", Active: true,
	}))
	require.NoError(t, h.store.Add(engine.Record{
		UID: "11223344", Name: "Other", TargetDate: "2025-08-01", ImagePath: "/images/pie.bmp", Active: true,
	}))

	payload, ct := multipartBody(t, "cake.bmp", testBMP(t))
	resp, body := h.do(t, http.MethodPost, config.RouteUploadImage, ct, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, []string{"AABBCCDD"}, h.loop.invalidated)

	resp, _ = h.doJSON(t, http.MethodDelete, "/api/images/cake.bmp", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"AABBCCDD", "AABBCCDD"}, h.loop.invalidated)
}

func TestStoredName(t *testing.T) {
	assert.Equal(t, "cake.bmp", storedName("cake.bmp"))
	assert.Equal(t, "Cake_2.BMP", storedName("C:/pics/Cake_2.BMP"))

	for _, in := range []string{"photo.png", "", ".hidden.bmp", "space name.bmp"} {
		got := storedName(in)
		assert.NotEqual(t, in, got)
		assert.True(t, strings.HasSuffix(got, config.ExtBMP))
		assert.Regexp(t, imageName, got)
	}
}

func TestImportVCard(t *testing.T) {
	stream := "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Ada\r\nBDAY:1990-12-10\r\nX-COUNTDOWN-UID:11121314\r\nEND:VCARD\r\n" +
		"BEGIN:VCARD\r\nVERSION:4.0\r\nFN:No Card\r\nBDAY:1990-12-10\r\nEND:VCARD\r\n"

	t.Run("Raw body", func(t *testing.T) {
		h := newHarness(t, 20)
		resp, body := h.do(t, http.MethodPost, config.RouteImportVCard, "text/vcard", strings.NewReader(stream))
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.JSONEq(t, `{"success":true,"added":1,"updated":0,"skipped":1}`, body)

		rec, ok := h.store.Find("11121314")
		require.True(t, ok)
		assert.Equal(t, "2025-12-10", rec.TargetDate)
	})

	t.Run("Remote address book", func(t *testing.T) {
		h := newHarness(t, 20)
		h.fetcher.body = stream

		resp, body := h.doJSON(t, http.MethodPost, config.RouteImportVCard,
			`{"url":"https://dav.example.com/ab.vcf","user":"u","password":"p"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, "https://dav.example.com/ab.vcf", h.fetcher.url)
		assert.Equal(t, 1, h.store.Len())
	})

	t.Run("JSON without url", func(t *testing.T) {
		h := newHarness(t, 20)
		resp, _ := h.doJSON(t, http.MethodPost, config.RouteImportVCard, `{"user":"u"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestFeedsRouted(t *testing.T) {
	h := newHarness(t, 20)

	resp, _ := h.do(t, http.MethodGet, config.RouteFrame, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	h.srv.Frame.Update([]byte("\x89PNG"))
	resp, _ = h.do(t, http.MethodGet, config.RouteFrame, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, config.MimeImagePNG, resp.Header.Get(config.HeaderContentType))

	require.NoError(t, h.store.Add(engine.Record{UID: "AABB", Name: "Trip", TargetDate: "2025-08-01", Active: true}))
	require.NoError(t, h.srv.RefreshCalendar())
	resp, body := h.do(t, http.MethodGet, config.RouteCalendar, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "Trip")
}

// TestServer_Lifecycle binds a real listener and shuts it down gracefully.
func TestServer_Lifecycle(t *testing.T) {
	const addr = "127.0.0.1:18099"
	keyring.MockInit()
	st, err := store.Open(filepath.Join(t.TempDir(), config.StoreFileName), 20)
	require.NoError(t, err)

	srv := New(Deps{Store: st, Loop: &fakeLoop{}, ListenAddr: addr})
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()

	url := "http://" + addr + config.RouteCountdowns
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond, "Server failed to bind/listen in time")

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err, "Server should shutdown gracefully without error")
	case <-time.After(5 * time.Second):
		t.Fatal("Server shutdown timed out")
	}
}

func TestServer_StartRequiresAddress(t *testing.T) {
	srv := New(Deps{})
	assert.EqualError(t, srv.Start(context.Background()), config.ErrListenRequired)
}

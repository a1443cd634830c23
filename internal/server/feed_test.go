package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/card-countdown/internal/config"
)

func get(t *testing.T, h http.Handler, method string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	resp := w.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestFeed_ServingContent(t *testing.T) {
	feed := NewFeed("calendar", config.MimeTextCalendar)
	expected := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR")
	feed.Update(expected)

	resp := get(t, feed, http.MethodGet, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, config.MimeTextCalendar, resp.Header.Get(config.HeaderContentType))
	assert.Equal(t, config.MimeNoSniff, resp.Header.Get(config.HeaderXContentType))
	assert.Contains(t, resp.Header.Get(config.HeaderCacheControl), "no-cache")
	assert.NotEmpty(t, resp.Header.Get(config.HeaderETag))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, expected, body)
}

func TestFeed_Revalidation(t *testing.T) {
	feed := NewFeed("frame", config.MimeImagePNG)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	feed.clock = func() time.Time { return fixed }
	feed.Update([]byte("PNG_V1"))

	etag := get(t, feed, http.MethodGet, nil).Header.Get(config.HeaderETag)
	require.NotEmpty(t, etag)

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"Matching ETag", map[string]string{config.HeaderIfNoneMatch: etag}, http.StatusNotModified},
		{"Stale ETag", map[string]string{config.HeaderIfNoneMatch: `"old"`}, http.StatusOK},
		{"Not modified since", map[string]string{config.HeaderIfModifiedSince: fixed.Format(http.TimeFormat)}, http.StatusNotModified},
		{"Modified since", map[string]string{config.HeaderIfModifiedSince: fixed.Add(-time.Hour).Format(http.TimeFormat)}, http.StatusOK},
		{"Garbage date", map[string]string{config.HeaderIfModifiedSince: "yesterday"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, feed, http.MethodGet, tt.headers)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusNotModified {
				body, _ := io.ReadAll(resp.Body)
				assert.Empty(t, body, "Body must be empty on 304 Not Modified")
			}
		})
	}

	feed.Update([]byte("PNG_V2"))
	resp := get(t, feed, http.MethodGet, map[string]string{config.HeaderIfNoneMatch: etag})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "new content invalidates the old ETag")
}

func TestFeed_MethodNotAllowed(t *testing.T) {
	feed := NewFeed("calendar", config.MimeTextCalendar)
	feed.Update([]byte("x"))

	resp := get(t, feed, http.MethodPost, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(config.HeaderAllow))
}

func TestFeed_HeadHasNoBody(t *testing.T) {
	feed := NewFeed("frame", config.MimeImagePNG)
	feed.Update([]byte("PNG"))

	resp := get(t, feed, http.MethodHead, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)
}

func TestFeed_Initializing(t *testing.T) {
	feed := NewFeed("frame", config.MimeImagePNG)
	assert.False(t, feed.Ready())

	resp := get(t, feed, http.MethodGet, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, config.RetryAfterSeconds, resp.Header.Get(config.HeaderRetryAfter))
}

// TestFeed_RaceCondition runs writers and readers concurrently.
// Run this with `go test -race`.
func TestFeed_RaceCondition(t *testing.T) {
	feed := NewFeed("calendar", config.MimeTextCalendar)
	var wg sync.WaitGroup
	end := time.Now().Add(300 * time.Millisecond)

	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; time.Now().Before(end); i++ {
				feed.Update([]byte(fmt.Sprintf("VERSION:%d-%d", id, i)))
				time.Sleep(time.Microsecond)
			}
		}(w)
	}

	for r := 0; r < 20; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				w := httptest.NewRecorder()
				feed.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
				if w.Code != http.StatusOK && w.Code != http.StatusServiceUnavailable {
					t.Errorf("Unexpected status code during race test: %d", w.Code)
				}
			}
		}()
	}

	wg.Wait()
}

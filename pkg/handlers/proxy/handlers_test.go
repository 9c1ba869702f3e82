package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"embedgate/pkg/logging"
	"embedgate/pkg/providers"
	"embedgate/pkg/resolver"
)

// stubFetcher serves canned embed pages keyed by URL.
type stubFetcher struct {
	pages map[string]string
	calls int
}

func (s *stubFetcher) FetchPage(_ context.Context, pageURL string) ([]byte, error) {
	s.calls++
	body, ok := s.pages[pageURL]
	if !ok {
		return nil, errors.New("no such page")
	}
	return []byte(body), nil
}

func newTestHandlers(t *testing.T, pages map[string]string) (*Handlers, *http.ServeMux, *stubFetcher) {
	t.Helper()
	log := logging.Discard()
	reg := providers.NewRegistry([]providers.Provider{
		{Name: "VidSrc", Slug: "vidsrc", BaseURL: "https://vidsrc.example/embed", Emoji: "🎬"},
	})
	f := &stubFetcher{pages: pages}
	res := resolver.New(f, log, 3, time.Second)
	h := NewHandlers(reg, res, log)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux, f
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHealthEndpoints(t *testing.T) {
	_, mux, _ := newTestHandlers(t, nil)

	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if body := decodeJSON(t, rec); body["status"] != "ok" {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestNonGETRejected(t *testing.T) {
	_, mux, _ := newTestHandlers(t, nil)

	for _, tt := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/"},
		{http.MethodPut, "/health"},
		{http.MethodPost, "/proxy/vidsrc/movie/603"},
		{http.MethodDelete, "/proxy/vidsrc/tv/1396/1/1"},
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tt.method, tt.path, rec.Code)
		}
		if body := decodeJSON(t, rec); body["error"] == "" {
			t.Errorf("%s %s: missing JSON error body", tt.method, tt.path)
		}
	}
}

func TestUnknownPathIs404(t *testing.T) {
	_, mux, _ := newTestHandlers(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
}

func TestProxyTVJSONEndToEnd(t *testing.T) {
	// Two wrapper hops down to the CDN player, relative and
	// protocol-relative srcs along the way.
	pages := map[string]string{
		"https://vidsrc.example/embed/tv/1396/1/1": `<iframe src="/rcp/abc"></iframe>`,
		"https://vidsrc.example/rcp/abc":           `<iframe src="//cdn.example/x"></iframe>`,
		"https://cdn.example/x":                    `<video></video>`,
	}
	_, mux, _ := newTestHandlers(t, pages)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/vidsrc/tv/1396/1/1?format=json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body := decodeJSON(t, rec); body["url"] != "https://cdn.example/x" {
		t.Errorf("url = %q, want the unwrapped player URL", body["url"])
	}
}

func TestProxyMovieRedirectFormat(t *testing.T) {
	pages := map[string]string{
		"https://vidsrc.example/embed/movie/603": `<video></video>`,
	}
	_, mux, _ := newTestHandlers(t, pages)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/vidsrc/movie/603?format=redirect", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://vidsrc.example/embed/movie/603" {
		t.Errorf("Location = %q", loc)
	}
}

func TestProxyDefaultFormatIsPlayerPage(t *testing.T) {
	pages := map[string]string{
		"https://vidsrc.example/embed/movie/603": `<video></video>`,
	}
	_, mux, _ := newTestHandlers(t, pages)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/vidsrc/movie/603", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if xfo := rec.Header().Get("X-Frame-Options"); xfo != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want SAMEORIGIN", xfo)
	}
	html := rec.Body.String()
	if !strings.Contains(html, `src="https://vidsrc.example/embed/movie/603"`) {
		t.Error("player page does not embed the stream URL")
	}
	if !strings.Contains(html, "requestFullscreen") {
		t.Error("player page is missing the fullscreen bridge script")
	}
}

func TestPlayerPageEscapesQuotes(t *testing.T) {
	h, _, _ := newTestHandlers(t, nil)

	rec := httptest.NewRecorder()
	h.writePlayerPage(rec, `https://cdn.example/x?a="b"`)

	html := rec.Body.String()
	if strings.Contains(html, `a="b"`) {
		t.Error("raw double quotes leaked into the iframe src attribute")
	}
	if !strings.Contains(html, "a=&quot;b&quot;") {
		t.Error("quotes in the stream URL were not entity-escaped")
	}
}

func TestProxyDirectURLBypass(t *testing.T) {
	pages := map[string]string{
		"https://anime.example/38000/1": `<iframe src="https://anime-cdn.example/p"></iframe>`,
		"https://anime-cdn.example/p":   `ok`,
	}
	_, mux, _ := newTestHandlers(t, pages)

	target := "/proxy/cinetaro/tv?url=" + "https%3A%2F%2Fanime.example%2F38000%2F1" + "&format=json"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	// Slug is never looked up on the bypass path, so an unregistered
	// provider slug still works.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body := decodeJSON(t, rec); body["url"] != "https://anime-cdn.example/p" {
		t.Errorf("url = %q", body["url"])
	}
}

func TestProxyDirectStreamShortCircuit(t *testing.T) {
	_, mux, f := newTestHandlers(t, nil)

	target := "/proxy/vidsrc/tv?url=" + "https%3A%2F%2Fcdn.example%2Fmaster.m3u8%3Ftoken%3Dabc" + "&format=json"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeJSON(t, rec); body["url"] != "https://cdn.example/master.m3u8?token=abc" {
		t.Errorf("url = %q", body["url"])
	}
	if f.calls != 0 {
		t.Errorf("direct media URL was fetched %d times, want 0", f.calls)
	}
}

func TestProxyDegradedResolveStillServes(t *testing.T) {
	// Upstream completely unreachable: the composed embed URL comes back
	// as-is instead of an error page.
	_, mux, _ := newTestHandlers(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/vidsrc/movie/603?format=json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want degraded 200", rec.Code)
	}
	if body := decodeJSON(t, rec); body["url"] != "https://vidsrc.example/embed/movie/603" {
		t.Errorf("url = %q, want the composed embed URL", body["url"])
	}
}

func TestProxyValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"too few segments", "/proxy/vidsrc", http.StatusBadRequest},
		{"movie missing id", "/proxy/vidsrc/movie", http.StatusBadRequest},
		{"movie non-numeric id", "/proxy/vidsrc/movie/abc", http.StatusBadRequest},
		{"movie zero id", "/proxy/vidsrc/movie/0", http.StatusBadRequest},
		{"tv missing episode", "/proxy/vidsrc/tv/1396/1", http.StatusBadRequest},
		{"tv non-numeric season", "/proxy/vidsrc/tv/1396/x/1", http.StatusBadRequest},
		{"unsupported media type", "/proxy/vidsrc/book/603", http.StatusBadRequest},
		{"unknown provider", "/proxy/nosuch/movie/603", http.StatusBadGateway},
	}

	_, mux, _ := newTestHandlers(t, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantStatus)
			}
			if body := decodeJSON(t, rec); body["error"] == "" {
				t.Error("missing JSON error body")
			}
		})
	}
}

func TestProxyAgainstLiveUpstream(t *testing.T) {
	// Full loop with a real HTTP upstream standing in for the provider.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed/movie/603":
			fmt.Fprintf(w, `<iframe src="%s/inner"></iframe>`, "http://"+r.Host)
		case "/inner":
			fmt.Fprint(w, `<video></video>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	log := logging.Discard()
	reg := providers.NewRegistry([]providers.Provider{
		{Name: "Test", Slug: "test", BaseURL: upstream.URL + "/embed"},
	})
	res := resolver.New(httpFetcher{}, log, 3, time.Second)
	h := NewHandlers(reg, res, log)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/test/movie/603?format=json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body := decodeJSON(t, rec); body["url"] != upstream.URL+"/inner" {
		t.Errorf("url = %q, want %q", body["url"], upstream.URL+"/inner")
	}
}

// httpFetcher is a plain net/http page fetcher for tests that run a live
// httptest upstream.
type httpFetcher struct{}

func (httpFetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

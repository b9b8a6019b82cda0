package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"seedlink/internal/resolver"
)

type stubService struct {
	mu    sync.Mutex
	calls []string
	res   *resolver.Result
	err   error
}

func (s *stubService) GetLink(_ context.Context, u string) (*resolver.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, u)
	return s.res, s.err
}

func newTestServer(svc GetLinker, limit int) *Server {
	return New(Config{Service: svc, Logger: zerolog.Nop(), DebugHTMLLimit: limit})
}

func strPtr(s string) *string { return &s }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRootAndPing(t *testing.T) {
	t.Parallel()
	s := newTestServer(&stubService{}, 0)
	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "OK"},
		{"/ping", http.StatusOK, "pong\n"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: status %d, want %d", tc.path, rec.Code, tc.status)
		}
		if tc.body != "" && rec.Body.String() != tc.body {
			t.Fatalf("%s: body %q, want %q", tc.path, rec.Body.String(), tc.body)
		}
	}
}

func TestGetLinkMissingURL(t *testing.T) {
	t.Parallel()
	for _, target := range []string{"/getlink", "/getlink?url=", "/getlink?url=%20%20"} {
		svc := &stubService{}
		s := newTestServer(svc, 0)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400", target, rec.Code)
		}
		if got := decode(t, rec)["error"]; got != "Missing ?url parameter" {
			t.Fatalf("%s: error %v", target, got)
		}
		if len(svc.calls) != 0 {
			t.Fatalf("%s: service called %d times", target, len(svc.calls))
		}
	}
}

func TestGetLinkSuccess(t *testing.T) {
	t.Parallel()
	svc := &stubService{res: &resolver.Result{
		FinalURL: "https://driveseed.org/file/XYZ987",
		FileID:   "XYZ987",
		Links: resolver.Links{
			resolver.LabelZFile:      strPtr("https://cdn.example/z"),
			resolver.LabelWFileType1: strPtr("https://cdn.example/1"),
			resolver.LabelWFileType2: nil,
		},
	}}
	s := newTestServer(svc, 0)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/getlink?url=https%3A%2F%2Flinks.example%2Fgo%2Fabc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.calls) != 1 || svc.calls[0] != "https://links.example/go/abc" {
		t.Fatalf("service calls = %v", svc.calls)
	}
	body := decode(t, rec)
	if body["final_url"] != "https://driveseed.org/file/XYZ987" || body["file_id"] != "XYZ987" {
		t.Fatalf("unexpected body %v", body)
	}
	links, ok := body["download_links"].(map[string]any)
	if !ok || len(links) != 3 {
		t.Fatalf("download_links = %v", body["download_links"])
	}
	if v, present := links["wfile_type2"]; !present || v != nil {
		t.Fatalf("wfile_type2 should be an explicit null, got %v (present=%v)", v, present)
	}
	if links["zfile"] != "https://cdn.example/z" {
		t.Fatalf("zfile = %v", links["zfile"])
	}
}

func TestGetLinkNotFound(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		err      error
		wantHTML any
		wantErr  bool
	}{
		{"miss", &resolver.NotFoundError{Title: "Just a moment", HTML: "<html></html>"}, "<html></html>", false},
		{"nav failure", &resolver.NotFoundError{Err: errors.New("net::ERR_TIMED_OUT")}, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&stubService{err: tc.err}, 0)
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/getlink?url=x", nil))
			if rec.Code != http.StatusGatewayTimeout {
				t.Fatalf("status %d, want 504", rec.Code)
			}
			body := decode(t, rec)
			if body["error"] != "Redirect link not found" {
				t.Fatalf("error = %v", body["error"])
			}
			if html, present := body["debug_html"]; !present || html != tc.wantHTML {
				t.Fatalf("debug_html = %v (present=%v), want %v", html, present, tc.wantHTML)
			}
			if _, present := body["debug_error"]; present != tc.wantErr {
				t.Fatalf("debug_error present=%v, want %v", present, tc.wantErr)
			}
		})
	}
}

func TestGetLinkNotFoundTruncatesHTML(t *testing.T) {
	t.Parallel()
	html := strings.Repeat("a", 9) + "é" + strings.Repeat("b", 20)
	s := newTestServer(&stubService{err: &resolver.NotFoundError{HTML: html}}, 10)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/getlink?url=x", nil))

	got, _ := decode(t, rec)["debug_html"].(string)
	if got != strings.Repeat("a", 9) {
		t.Fatalf("debug_html = %q, want the rune-safe prefix", got)
	}
}

func TestGetLinkFailure(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("%w: %w", resolver.ErrLaunch, errors.New("chrome not found"))
	s := newTestServer(&stubService{err: err}, 0)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/getlink?url=x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != err.Error() {
		t.Fatalf("error = %v, want %q", got, err.Error())
	}
}

func TestGetLinkMethodNotAllowed(t *testing.T) {
	t.Parallel()
	svc := &stubService{}
	s := newTestServer(svc, 0)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/getlink?url=x", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("Allow = %q", rec.Header().Get("Allow"))
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service called on POST")
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := New(Config{Service: &stubService{}, Logger: zerolog.New(&buf)})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := rec.Header().Get("X-Request-Id")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("X-Request-Id %q is not a uuid: %v", id, err)
	}
	if !strings.Contains(buf.String(), `"request_id":"`+id+`"`) {
		t.Fatalf("access log missing request id: %s", buf.String())
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "upstream-1")
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "upstream-1" {
		t.Fatalf("X-Request-Id = %q, want the caller's id", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"日本語", 4, "日"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.limit)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) produced invalid UTF-8", tc.in, tc.limit)
		}
	}
}

type blockingService struct {
	sawDeadline bool
}

func (s *blockingService) GetLink(ctx context.Context, _ string) (*resolver.Result, error) {
	_, s.sawDeadline = ctx.Deadline()
	<-ctx.Done()
	return nil, &resolver.NotFoundError{Err: ctx.Err()}
}

func TestGetLinkRequestTimeout(t *testing.T) {
	t.Parallel()
	svc := &blockingService{}
	s := New(Config{Service: svc, Logger: zerolog.Nop(), RequestTimeout: 20 * time.Millisecond})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/getlink?url=x", nil))
		done <- rec
	}()

	select {
	case rec := <-done:
		if !svc.sawDeadline {
			t.Fatal("lookup ran without a deadline")
		}
		if rec.Code != http.StatusGatewayTimeout {
			t.Fatalf("status %d, want 504", rec.Code)
		}
		if got := decode(t, rec)["debug_error"]; got != context.DeadlineExceeded.Error() {
			t.Fatalf("debug_error = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler outlived its request timeout")
	}
}

func TestGetLinkZeroLimitKeepsWholeHTML(t *testing.T) {
	t.Parallel()
	html := strings.Repeat("x", 9000)
	s := newTestServer(&stubService{err: &resolver.NotFoundError{HTML: html}}, 0)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/getlink?url=x", nil))

	if got, _ := decode(t, rec)["debug_html"].(string); got != html {
		t.Fatalf("debug_html has %d bytes, want all %d", len(got), len(html))
	}
}

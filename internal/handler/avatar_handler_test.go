package handler

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mangatalk/internal/security"
)

// --- モック定義 ---

// stubRoundTripper は外部へのHTTPリクエストを固定レスポンスで置き換える。
type stubRoundTripper struct {
	roundTripFn func(req *http.Request) (*http.Response, error)
}

func (s *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return s.roundTripFn(req)
}

type mockAvatarGuard struct {
	transport   http.RoundTripper
	validateErr error
}

func (m *mockAvatarGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: m.transport, Timeout: timeout}
}

func (m *mockAvatarGuard) ValidateURL(rawURL string) error {
	return m.validateErr
}

var _ security.AvatarURLGuardService = (*mockAvatarGuard)(nil)

func imageResponse(body string, contentType string) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// --- テスト ---

func TestGetAvatar_ProxiesImage(t *testing.T) {
	guard := &mockAvatarGuard{
		transport: &stubRoundTripper{
			roundTripFn: func(req *http.Request) (*http.Response, error) {
				return imageResponse("fake-image-bytes", "image/jpeg"), nil
			},
		},
	}
	h := NewAvatarHandler(guard, 5*time.Second, 1048576)

	req := httptest.NewRequest(http.MethodGet, "/api/avatar?url=https://t.me/i/userpic/320/taro.jpg", nil)
	rec := httptest.NewRecorder()

	h.GetAvatar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", got)
	}
	if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "max-age=86400") {
		t.Errorf("Cache-Control = %q, want max-age=86400", got)
	}
	if rec.Body.String() != "fake-image-bytes" {
		t.Errorf("body = %q, want fake-image-bytes", rec.Body.String())
	}
}

func TestGetAvatar_MissingURL_Returns400(t *testing.T) {
	h := NewAvatarHandler(&mockAvatarGuard{}, 5*time.Second, 1048576)

	req := httptest.NewRequest(http.MethodGet, "/api/avatar", nil)
	rec := httptest.NewRecorder()

	h.GetAvatar(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetAvatar_DisallowedURL_Returns400(t *testing.T) {
	guard := &mockAvatarGuard{
		validateErr: fmt.Errorf("disallowed avatar host"),
	}
	h := NewAvatarHandler(guard, 5*time.Second, 1048576)

	req := httptest.NewRequest(http.MethodGet, "/api/avatar?url=https://evil.example.com/x.jpg", nil)
	rec := httptest.NewRecorder()

	h.GetAvatar(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetAvatar_FetchFailure_Returns502(t *testing.T) {
	tests := []struct {
		name string
		fn   func(req *http.Request) (*http.Response, error)
	}{
		{
			name: "接続エラー",
			fn: func(req *http.Request) (*http.Response, error) {
				return nil, fmt.Errorf("connection refused")
			},
		},
		{
			name: "200以外のステータス",
			fn: func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusNotFound,
					Header:     http.Header{},
					Body:       io.NopCloser(strings.NewReader("not found")),
				}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := &mockAvatarGuard{
				transport: &stubRoundTripper{roundTripFn: tt.fn},
			}
			h := NewAvatarHandler(guard, 5*time.Second, 1048576)

			req := httptest.NewRequest(http.MethodGet, "/api/avatar?url=https://t.me/i/userpic/320/x.jpg", nil)
			rec := httptest.NewRecorder()

			h.GetAvatar(rec, req)

			if rec.Code != http.StatusBadGateway {
				t.Errorf("status = %d, want 502", rec.Code)
			}
		})
	}
}

// レスポンスボディはmaxSizeで切り詰められる。
func TestGetAvatar_TruncatesOversizedBody(t *testing.T) {
	guard := &mockAvatarGuard{
		transport: &stubRoundTripper{
			roundTripFn: func(req *http.Request) (*http.Response, error) {
				return imageResponse(strings.Repeat("x", 100), "image/png"), nil
			},
		},
	}
	h := NewAvatarHandler(guard, 5*time.Second, 10) // maxSize = 10バイト

	req := httptest.NewRequest(http.MethodGet, "/api/avatar?url=https://t.me/i/userpic/320/x.jpg", nil)
	rec := httptest.NewRecorder()

	h.GetAvatar(rec, req)

	if got := rec.Body.Len(); got != 10 {
		t.Errorf("body length = %d, want 10", got)
	}
}

// Content-Typeが無い場合はoctet-streamで返す。
func TestGetAvatar_MissingContentType_DefaultsToOctetStream(t *testing.T) {
	guard := &mockAvatarGuard{
		transport: &stubRoundTripper{
			roundTripFn: func(req *http.Request) (*http.Response, error) {
				return imageResponse("bytes", ""), nil
			},
		},
	}
	h := NewAvatarHandler(guard, 5*time.Second, 1048576)

	req := httptest.NewRequest(http.MethodGet, "/api/avatar?url=https://t.me/i/userpic/320/x.jpg", nil)
	rec := httptest.NewRecorder()

	h.GetAvatar(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", got)
	}
}

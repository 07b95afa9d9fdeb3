package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rr.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated id to be echoed, ctx=%q header=%q", seen, rr.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" {
		t.Fatalf("expected client id to be kept, got %q", seen)
	}
}

func TestInMemoryRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", rr.Code)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		DoctorID int64  `json:"doctor_id"`
		Date     string `json:"date"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"doctor_id":3,"date":"2024-05-01"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.DoctorID != 3 {
		t.Fatalf("decode: %+v %v", dst, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"doctor":3}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatalf("expected unknown field error")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := DecodeJSON(req, &dst); err == nil || err.Error() != "request body is required" {
		t.Fatalf("expected empty body error, got %v", err)
	}
}

func TestRequireMethod(t *testing.T) {
	rr := httptest.NewRecorder()
	if RequireMethod(rr, httptest.NewRequest(http.MethodDelete, "/", nil), http.MethodGet, http.MethodPost) {
		t.Fatalf("expected rejection")
	}
	if rr.Code != http.StatusMethodNotAllowed || len(rr.Header().Values("Allow")) != 2 {
		t.Fatalf("unexpected response: %d %v", rr.Code, rr.Header())
	}
}

func TestRecoverAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Chain(panicky, WithRequestID, WithAccessLog(logger), WithRecover(logger))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"handler panic"`) || !strings.Contains(out, `"status":500`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://clinic.example"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         time.Hour,
	})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/doctors", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Max-Age") != "3600" {
		t.Fatalf("unexpected max age %q", rr.Header().Get("Access-Control-Max-Age"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin for foreign site")
	}
}

func TestAccessLevel(t *testing.T) {
	cases := map[int]slog.Level{
		http.StatusOK:                 slog.LevelInfo,
		http.StatusNotFound:           slog.LevelInfo,
		http.StatusForbidden:          slog.LevelWarn,
		http.StatusTooManyRequests:    slog.LevelWarn,
		http.StatusServiceUnavailable: slog.LevelError,
	}
	for status, want := range cases {
		if got := accessLevel(status); got != want {
			t.Fatalf("status %d: got %v want %v", status, got, want)
		}
	}
}

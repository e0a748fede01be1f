package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNetHTTPAdapter(t *testing.T) {
	h := NetHTTPAdapter(func(w ResponseWriter, r *Request) {
		if r.Method != http.MethodPost || r.Path != "/echo" {
			t.Fatalf("request: %s %s", r.Method, r.Path)
		}
		if got := r.Header.Get("X-Probe"); got != "yes" {
			t.Fatalf("header not carried: %q", got)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("ping"))
	req.Header.Set("X-Probe", "yes")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("response headers: %v", rec.Header())
	}
	if rec.Body.String() != "ping" {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestNetHTTPAdapterImplicitOK(t *testing.T) {
	h := NetHTTPAdapter(func(w ResponseWriter, r *Request) {
		_, _ = w.Write([]byte("ok"))
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

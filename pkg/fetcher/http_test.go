package fetcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newLoopForHTTPTest(t *testing.T) *Loop {
	t.Helper()
	l, err := New(WithOnFetched(func(string, *http.Response, []byte) error { return nil }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestGetURLReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	l := newLoopForHTTPTest(t)
	resp, content, err := l.getURL(srv.URL, false)
	if err != nil {
		t.Fatalf("getURL: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(content) != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", content)
	}
}

func TestGetURLSendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	l, err := New(
		WithOnFetched(func(string, *http.Response, []byte) error { return nil }),
		WithUserAgent("datawatch-test/1.0"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := l.getURL(srv.URL, false); err != nil {
		t.Fatalf("getURL: %v", err)
	}
	if gotUA != "datawatch-test/1.0" {
		t.Fatalf("expected custom User-Agent, got %q", gotUA)
	}
}

func TestGetURLStatusErrorWithoutAllowFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := newLoopForHTTPTest(t)
	if _, _, err := l.getURL(srv.URL, false); err == nil {
		t.Fatalf("expected error for 500 response without allowFailure")
	}
}

func TestGetURLWrapsFailureAsTransientWhenAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l := newLoopForHTTPTest(t)
	resp, content, err := l.getURL(srv.URL, true)
	if err == nil {
		t.Fatalf("expected a TransientFetchError")
	}
	if resp == nil {
		t.Fatalf("expected response to still be returned alongside the error")
	}
	_ = content
}

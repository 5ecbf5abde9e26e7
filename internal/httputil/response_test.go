package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		mock := NewMockHTTPClient().AddResponse(http.StatusOK, "payload")
		body, err := Fetch(ctx, mock, "http://example.com/a")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if string(body) != "payload" {
			t.Errorf("body = %q", body)
		}
		if got := mock.GetRequest(0).Method; got != http.MethodGet {
			t.Errorf("method = %s, want GET", got)
		}
	})

	t.Run("status error", func(t *testing.T) {
		t.Parallel()
		mock := NewMockHTTPClient().AddResponse(http.StatusNotFound, strings.Repeat("x", 500))
		_, err := Fetch(ctx, mock, "http://example.com/missing")
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected StatusError, got %v", err)
		}
		if se.StatusCode != http.StatusNotFound || len(se.Body) != 200 {
			t.Errorf("status = %d, body len = %d", se.StatusCode, len(se.Body))
		}
		if !IsNotFound(err) {
			t.Error("IsNotFound = false")
		}
	})

	t.Run("server error is not not-found", func(t *testing.T) {
		t.Parallel()
		mock := NewMockHTTPClient().AddResponse(http.StatusBadGateway, "")
		_, err := Fetch(ctx, mock, "http://example.com/a")
		if err == nil || IsNotFound(err) {
			t.Errorf("err = %v", err)
		}
		if got := err.Error(); got != "GET http://example.com/a: status 502" {
			t.Errorf("message = %q", got)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		mock := NewMockHTTPClient().AddErrorResponse(boom)
		if _, err := Fetch(ctx, mock, "http://example.com/a"); !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := Fetch(cctx, NewStandardClient(nil), server.URL); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestGetJSON(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"id": 7, "name": "x"}`).
		AddResponse(http.StatusOK, `{"id":`)

	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := GetJSON(ctx, mock, "http://example.com/a", &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.ID != 7 || out.Name != "x" {
		t.Errorf("decoded %+v", out)
	}

	err := GetJSON(ctx, mock, "http://example.com/b", &out)
	if err == nil || !strings.Contains(err.Error(), "failed to decode") {
		t.Errorf("err = %v, want decode failure", err)
	}
}

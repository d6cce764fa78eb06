package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoSendsHeadersAndBody(t *testing.T) {
	var (
		gotTester string
		gotType   string
		gotBody   string
		gotPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTester = r.Header.Get("X-Tester")
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	client := New(srv.URL+"/", time.Second, "alice")
	resp, err := client.Do(context.Background(), http.MethodPost, "/submit_result", "", nil, []byte(`{"test_result":"Pass"}`))
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != `{"message":"ok"}` {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, resp.Body)
	}
	if gotPath != "/submit_result" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotTester != "alice" || gotType != "application/json" || gotBody != `{"test_result":"Pass"}` {
		t.Fatalf("unexpected request: tester=%q type=%q body=%q", gotTester, gotType, gotBody)
	}
}

func TestDoReportsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, time.Second, "")
	if _, err := client.Do(context.Background(), http.MethodGet, "/", "", nil, nil); err == nil {
		t.Fatalf("expected error for closed server")
	}
}

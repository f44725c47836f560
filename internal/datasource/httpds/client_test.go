package httpds

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		statuses  []int
		retries   int
		wantErr   string
		wantCalls int32
	}{
		{name: "ok", statuses: []int{200}, wantCalls: 1},
		{name: "not_found_is_final", statuses: []int{404}, retries: 2, wantErr: "status 404", wantCalls: 1},
		{name: "no_retry_by_default", statuses: []int{503, 200}, wantErr: "status 503", wantCalls: 1},
		{name: "retry_then_ok", statuses: []int{503, 429, 200}, retries: 2, wantCalls: 3},
		{name: "retries_exhausted", statuses: []int{500, 500, 500}, retries: 1, wantErr: "status 500", wantCalls: 2},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				w.WriteHeader(c.statuses[n-1])
				_, _ = io.WriteString(w, "tconst\n")
			}))
			defer srv.Close()

			cl := NewClient(Config{MaxRetries: c.retries, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
			body, err := NewSource(cl, srv.URL).Open(context.Background())
			if c.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), c.wantErr) {
					t.Fatalf("err = %v, want %q", err, c.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				got, _ := io.ReadAll(body)
				body.Close()
				if string(got) != "tconst\n" {
					t.Fatalf("body = %q", got)
				}
			}
			if got := atomic.LoadInt32(&calls); got != c.wantCalls {
				t.Fatalf("calls = %d, want %d", got, c.wantCalls)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	if got := backoff(100*time.Millisecond, 0, time.Second); got != 100*time.Millisecond {
		t.Fatalf("retry 0 = %v", got)
	}
	if got := backoff(100*time.Millisecond, 2, time.Second); got != 400*time.Millisecond {
		t.Fatalf("retry 2 = %v", got)
	}
	if got := backoff(100*time.Millisecond, 10, time.Second); got != time.Second {
		t.Fatalf("retry 10 = %v", got)
	}
}

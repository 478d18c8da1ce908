package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeUpstream emulates the upstream chat backend. Each endpoint can be
// overridden per test; the defaults answer successfully.
type fakeUpstream struct {
	srv *httptest.Server

	refreshes   atomic.Int32
	clears      atomic.Int32
	completions atomic.Int32

	mu       sync.Mutex
	requests []recordedRequest

	identity   http.HandlerFunc
	clear      http.HandlerFunc
	completion http.HandlerFunc
}

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		header: r.Header.Clone(),
		body:   string(body),
	})
	f.mu.Unlock()

	switch r.URL.Path {
	case pathUsersCurrent:
		n := f.refreshes.Add(1)
		if f.identity != nil {
			f.identity(w, r)
			return
		}
		writeEnvelope(w, 0, "", map[string]string{"token": fmt.Sprintf("access-%d", n)})
	case pathClearContext:
		f.clears.Add(1)
		if f.clear != nil {
			f.clear(w, r)
			return
		}
		writeEnvelope(w, 0, "", nil)
	case pathCompletions:
		f.completions.Add(1)
		if f.completion != nil {
			f.completion(w, r)
			return
		}
		writeEvents(w, "Hello", " world")
	default:
		http.NotFound(w, r)
	}
}

// recorded returns the requests seen for path.
func (f *fakeUpstream) recorded(path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.path == path {
			out = append(out, r)
		}
	}
	return out
}

// writeEnvelope writes the upstream {code, msg, data} result envelope.
func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

// writeEvents streams one event per content piece followed by a stop event.
func writeEvents(w http.ResponseWriter, pieces ...string) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	for _, p := range pieces {
		content, _ := json.Marshal(p)
		fmt.Fprintf(w, "data: {\"id\":\"up-1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s},\"finish_reason\":null}]}\n\n", content)
	}
	fmt.Fprint(w, "data: {\"id\":\"up-1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"\"},\"finish_reason\":\"stop\"}]}\n\n")
}

// bearer extracts the token of an Authorization header.
func bearer(h http.Header) string {
	return strings.TrimPrefix(h.Get("Authorization"), "Bearer ")
}

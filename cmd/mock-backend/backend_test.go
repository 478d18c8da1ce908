package main

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func newTestBackend(t *testing.T, opts options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newBackend(opts).routes())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func envelope(t *testing.T, resp *http.Response) gjson.Result {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return gjson.ParseBytes(body)
}

func login(t *testing.T, srv *httptest.Server, refresh string) string {
	t.Helper()
	env := envelope(t, call(t, srv, http.MethodGet, "/api/v0/users/current", refresh, ""))
	if env.Get("code").Int() != codeOK {
		t.Fatalf("login code = %d", env.Get("code").Int())
	}
	return env.Get("data.token").String()
}

func TestCurrentUser(t *testing.T) {
	srv := newTestBackend(t, options{})

	access := login(t, srv, "good-refresh")
	if !strings.HasPrefix(access, "mock-") {
		t.Fatalf("access token = %q", access)
	}

	// An issued access token is confirmed as-is.
	if got := login(t, srv, access); got != access {
		t.Errorf("probe returned %q, want %q", got, access)
	}

	env := envelope(t, call(t, srv, http.MethodGet, "/api/v0/users/current", "bad-refresh", ""))
	if env.Get("code").Int() != codeTokenInvalid {
		t.Errorf("bad refresh code = %d, want %d", env.Get("code").Int(), codeTokenInvalid)
	}
}

func TestClearContext(t *testing.T) {
	srv := newTestBackend(t, options{})
	access := login(t, srv, "good-refresh")

	env := envelope(t, call(t, srv, http.MethodPost, "/api/v0/chat/clear_context", access, `{"model_class":"deepseek_chat","append_welcome_message":false}`))
	if env.Get("code").Int() != codeOK {
		t.Errorf("code = %d", env.Get("code").Int())
	}

	env = envelope(t, call(t, srv, http.MethodPost, "/api/v0/chat/clear_context", "unknown", `{"model_class":"deepseek_chat"}`))
	if env.Get("code").Int() != codeTokenInvalid {
		t.Errorf("unknown token code = %d", env.Get("code").Int())
	}
}

func TestCompletionsStream(t *testing.T) {
	srv := newTestBackend(t, options{})
	access := login(t, srv, "good-refresh")

	resp := call(t, srv, http.MethodPost, "/api/v0/chat/completions", access,
		`{"message":"system:be brief\nuser:hello there\nassistant:","stream":true,"model_class":"deepseek_chat","temperature":0}`)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	var content strings.Builder
	var finish string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		choice := gjson.Get(data, "choices.0")
		content.WriteString(choice.Get("delta.content").String())
		if fr := choice.Get("finish_reason").String(); fr != "" {
			finish = fr
		}
	}

	if content.String() != "Echo: hello there" {
		t.Errorf("content = %q", content.String())
	}
	if finish != "stop" {
		t.Errorf("finish_reason = %q", finish)
	}
}

func TestCompletionsPlain(t *testing.T) {
	srv := newTestBackend(t, options{plain: true})
	access := login(t, srv, "good-refresh")

	resp := call(t, srv, http.MethodPost, "/api/v0/chat/completions", access, `{"message":"ping\n","stream":true}`)
	env := envelope(t, resp)
	if got := env.Get("choices.0.message.content").String(); got != "Echo: ping" {
		t.Errorf("content = %q", got)
	}
}

func TestLastUserTurn(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"hello\n", "hello"},
		{"user:first\nassistant:ok\nuser:second\nassistant:", "second"},
		{"user:only\nassistant:", "only"},
	}
	for _, tt := range tests {
		if got := lastUserTurn(tt.prompt); got != tt.want {
			t.Errorf("lastUserTurn(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestSplitWords(t *testing.T) {
	s := "Echo: a b  c"
	if got := strings.Join(splitWords(s), ""); got != s {
		t.Errorf("rejoined = %q", got)
	}
}

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rhuss/tiefsee/pkg/api"
)

func TestClientRefresh(t *testing.T) {
	f := newFakeUpstream(t)
	c := NewClient(ClientOptions{BaseURL: f.srv.URL})
	defer c.Close()

	token, err := c.Refresh(context.Background(), "refresh-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "access-1" {
		t.Errorf("token = %q, want %q", token, "access-1")
	}

	reqs := f.recorded(pathUsersCurrent)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 identity request, got %d", len(reqs))
	}
	if reqs[0].method != http.MethodGet {
		t.Errorf("method = %s, want GET", reqs[0].method)
	}
	if got := bearer(reqs[0].header); got != "refresh-abc" {
		t.Errorf("bearer = %q, want refresh-abc", got)
	}
}

func TestClientBrowserHeaders(t *testing.T) {
	f := newFakeUpstream(t)
	c := NewClient(ClientOptions{
		BaseURL: f.srv.URL,
		Headers: map[string]string{
			"X-App-Version": "custom",
			"Pragma":        "",
		},
	})

	if err := c.ClearContext(context.Background(), "access", "deepseek-chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := f.recorded(pathClearContext)[0].header
	if got := h.Get("Origin"); got != "https://chat.deepseek.com" {
		t.Errorf("Origin = %q", got)
	}
	if got := h.Get("User-Agent"); got == "" || got == "Go-http-client/1.1" {
		t.Errorf("expected browser User-Agent, got %q", got)
	}
	if got := h.Get("X-App-Version"); got != "custom" {
		t.Errorf("X-App-Version = %q, want override", got)
	}
	if _, ok := h["Pragma"]; ok {
		t.Error("expected Pragma to be removed by empty override")
	}
	if got := h.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestClientClearContextBody(t *testing.T) {
	f := newFakeUpstream(t)
	c := NewClient(ClientOptions{BaseURL: f.srv.URL})

	if err := c.ClearContext(context.Background(), "access", "deepseek-coder"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(f.recorded(pathClearContext)[0].body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["model_class"] != "deepseek-coder" {
		t.Errorf("model_class = %v", body["model_class"])
	}
	if body["append_welcome_message"] != false {
		t.Errorf("append_welcome_message = %v", body["append_welcome_message"])
	}
}

func TestClientCompletionBody(t *testing.T) {
	f := newFakeUpstream(t)
	c := NewClient(ClientOptions{BaseURL: f.srv.URL})

	resp, err := c.Completion(context.Background(), "access", "deepseek-chat", "user:hi\nassistant:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	var body map[string]any
	if err := json.Unmarshal([]byte(f.recorded(pathCompletions)[0].body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "user:hi\nassistant:" {
		t.Errorf("message = %v", body["message"])
	}
	if body["stream"] != true {
		t.Errorf("stream = %v", body["stream"])
	}
	if v, ok := body["model_preference"]; !ok || v != nil {
		t.Errorf("model_preference = %v (present %v), want null", v, ok)
	}
	if body["model_class"] != "deepseek-chat" {
		t.Errorf("model_class = %v", body["model_class"])
	}
	if body["temperature"] != float64(0) {
		t.Errorf("temperature = %v", body["temperature"])
	}
}

func TestClientRefreshRejected(t *testing.T) {
	f := newFakeUpstream(t)
	f.identity = func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 40003, "Authorization Failed (invalid token)", nil)
	}
	c := NewClient(ClientOptions{BaseURL: f.srv.URL})

	_, err := c.Refresh(context.Background(), "dead")
	apiErr := api.AsAPIError(err)
	if apiErr == nil || apiErr.Type != api.ErrorTypeUpstreamAuth {
		t.Fatalf("expected upstream auth error, got %v", err)
	}
}

func TestClientTimeout(t *testing.T) {
	f := newFakeUpstream(t)
	f.identity = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	c := NewClient(ClientOptions{BaseURL: f.srv.URL, RequestTimeout: 50 * time.Millisecond})

	_, err := c.Refresh(context.Background(), "slow")
	apiErr := api.AsAPIError(err)
	if apiErr.Type != api.ErrorTypeUpstreamTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !apiErr.Timeout {
		t.Error("expected Timeout flag to be set")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be context.DeadlineExceeded")
	}
}

func TestClientConnectionRefused(t *testing.T) {
	f := newFakeUpstream(t)
	url := f.srv.URL
	f.srv.Close()

	c := NewClient(ClientOptions{BaseURL: url})
	err := c.Probe(context.Background(), "access")
	apiErr := api.AsAPIError(err)
	if apiErr.Type != api.ErrorTypeUpstreamTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if apiErr.Timeout {
		t.Error("connection refused must not be flagged as timeout")
	}
}

func TestCheckResult(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType api.ErrorType
		wantData string
	}{
		{name: "ok envelope", status: 200, body: `{"code":0,"msg":"","data":{"token":"t"}}`, wantData: `{"token":"t"}`},
		{name: "invalid token", status: 200, body: `{"code":40003,"msg":"invalid token","data":null}`, wantType: api.ErrorTypeUpstreamAuth},
		{name: "other code", status: 200, body: `{"code":40300,"msg":"rate limited","data":null}`, wantType: api.ErrorTypeUpstreamProtocol},
		{name: "plain json", status: 200, body: `{"ok":true}`, wantData: `{"ok":true}`},
		{name: "empty success", status: 204, body: ``, wantData: ``},
		{name: "unauthorized", status: 401, body: `{"msg":"no"}`, wantType: api.ErrorTypeUpstreamAuth},
		{name: "forbidden html", status: 403, body: `<html>blocked</html>`, wantType: api.ErrorTypeUpstreamAuth},
		{name: "server error", status: 502, body: `bad gateway`, wantType: api.ErrorTypeUpstreamProtocol},
		{name: "empty failure", status: 500, body: ``, wantType: api.ErrorTypeUpstreamProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := checkResult(tt.status, []byte(tt.body))
			if tt.wantType != "" {
				apiErr := api.AsAPIError(err)
				if apiErr == nil || apiErr.Type != tt.wantType {
					t.Fatalf("error = %v, want type %s", err, tt.wantType)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if data.Raw != tt.wantData {
				t.Errorf("data = %q, want %q", data.Raw, tt.wantData)
			}
		})
	}
}

func TestCheckResultMessage(t *testing.T) {
	_, err := checkResult(200, []byte(`{"code":40003,"msg":"invalid token","data":null}`))
	want := "[Request upstream failed]: invalid token"
	if got := api.AsAPIError(err).Message; got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

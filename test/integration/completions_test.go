package integration

import (
	"bufio"
	"net/http"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/stream"
)

func TestChatCompletion(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/chat/completions", chatRequest(false, userMessage("Say hello")), "rt-sync")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	var completion api.ChatCompletion
	decodeJSON(t, resp, &completion)

	if completion.Object != api.ObjectChatCompletion {
		t.Errorf("object = %q", completion.Object)
	}
	if completion.Model != "deepseek-chat" {
		t.Errorf("model = %q", completion.Model)
	}
	if len(completion.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(completion.Choices))
	}
	if got := completion.Choices[0].Message.Content; got != "Hello from upstream" {
		t.Errorf("content = %q", got)
	}
	if completion.Choices[0].FinishReason != api.FinishReasonStop {
		t.Errorf("finish_reason = %q", completion.Choices[0].FinishReason)
	}
	if prompt := testEnv.Upstream.lastPrompt(); prompt != "Say hello\n" {
		t.Errorf("upstream prompt = %q", prompt)
	}
}

func TestChatCompletionMergesConversation(t *testing.T) {
	body := chatRequest(false,
		api.ChatMessage{Role: api.RoleSystem, Content: api.TextContent("be brief")},
		userMessage("look ![cat](http://x/cat.png) here"),
	)
	resp := postJSON(t, testEnv.BaseURL()+"/v1/chat/completions", body, "rt-merge")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	want := "system:be brief\nuser:look  here\nassistant:"
	if prompt := testEnv.Upstream.lastPrompt(); prompt != want {
		t.Errorf("upstream prompt = %q, want %q", prompt, want)
	}
}

func TestChatCompletionUsesConfiguredTokens(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/chat/completions", chatRequest(false, userMessage("hi")))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with configured tokens, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
}

func TestChatCompletionStreaming(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/chat/completions", chatRequest(true, userMessage("stream please")), "rt-stream")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	chunks, done := readChunks(t, resp)
	if !done {
		t.Error("stream did not end with [DONE]")
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks received")
	}

	var content strings.Builder
	ids := map[string]bool{}
	var finish string
	for _, c := range chunks {
		if c.Get("object").String() != api.ObjectChatCompletionChunk {
			t.Errorf("chunk object = %q", c.Get("object").String())
		}
		ids[c.Get("id").String()] = true
		content.WriteString(c.Get("choices.0.delta.content").String())
		if fr := c.Get("choices.0.finish_reason").String(); fr != "" {
			finish = fr
		}
	}

	if content.String() != "Hello from upstream" {
		t.Errorf("content = %q", content.String())
	}
	if finish != api.FinishReasonStop {
		t.Errorf("finish_reason = %q", finish)
	}
	if len(ids) != 1 {
		t.Errorf("expected one completion id across chunks, got %d", len(ids))
	}
}

func TestChatCompletionStreamingFallback(t *testing.T) {
	testEnv.Upstream.setPlain(t, true)

	resp := postJSON(t, testEnv.BaseURL()+"/v1/chat/completions", chatRequest(true, userMessage("hi")), "rt-fallback")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	chunks, done := readChunks(t, resp)
	if !done {
		t.Error("fallback stream did not end with [DONE]")
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 fallback chunk, got %d", len(chunks))
	}
	if got := chunks[0].Get("choices.0.delta.content").String(); got != stream.FallbackNotice {
		t.Errorf("fallback content = %q", got)
	}
}

// readChunks collects the data payloads of an outward event stream.
func readChunks(t *testing.T, resp *http.Response) ([]gjson.Result, bool) {
	t.Helper()
	var chunks []gjson.Result
	done := false
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			done = true
			continue
		}
		chunks = append(chunks, gjson.Parse(data))
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	return chunks, done
}

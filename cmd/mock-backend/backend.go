package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	codeOK           = 0
	codeTokenInvalid = 40003
)

// userPrefix marks a user turn in a merged prompt.
const userPrefix = "user:"

type options struct {
	chunkDelay time.Duration
	plain      bool
}

// backend keeps the access tokens it has issued.
type backend struct {
	opts options

	mu     sync.Mutex
	issued map[string]string // access token -> refresh token
}

func newBackend(opts options) *backend {
	return &backend{opts: opts, issued: make(map[string]string)}
}

func (b *backend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v0/users/current", b.handleCurrentUser)
	mux.HandleFunc("POST /api/v0/chat/clear_context", b.handleClearContext)
	mux.HandleFunc("POST /api/v0/chat/completions", b.handleCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// handleCurrentUser exchanges a refresh token for an access token, or
// confirms that an access token is still valid.
func (b *backend) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)

	b.mu.Lock()
	_, known := b.issued[token]
	b.mu.Unlock()
	if known {
		writeEnvelope(w, codeOK, "", map[string]string{"token": token})
		return
	}

	if token == "" || strings.HasPrefix(token, "bad") {
		writeEnvelope(w, codeTokenInvalid, "token invalid", nil)
		return
	}

	access := newAccessToken()
	b.mu.Lock()
	b.issued[access] = token
	b.mu.Unlock()

	slog.Info("issued access token", "refresh", mask(token))
	writeEnvelope(w, codeOK, "", map[string]string{"token": access})
}

func (b *backend) handleClearContext(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		writeEnvelope(w, codeTokenInvalid, "token invalid", nil)
		return
	}
	body, _ := io.ReadAll(r.Body)
	if !gjson.GetBytes(body, "model_class").Exists() {
		writeEnvelope(w, 40001, "model_class is required", nil)
		return
	}
	writeEnvelope(w, codeOK, "", nil)
}

func (b *backend) handleCompletions(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		writeEnvelope(w, codeTokenInvalid, "token invalid", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		writeEnvelope(w, 40001, "invalid request body", nil)
		return
	}

	reply := "Echo: " + lastUserTurn(gjson.GetBytes(body, "message").String())
	id := uuid.NewString()

	if b.opts.plain {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": id,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	for _, piece := range splitWords(reply) {
		if r.Context().Err() != nil {
			return
		}
		writeChunk(w, id, piece, nil)
		if flusher != nil {
			flusher.Flush()
		}
		if b.opts.chunkDelay > 0 {
			time.Sleep(b.opts.chunkDelay)
		}
	}
	stop := "stop"
	writeChunk(w, id, "", &stop)
	if flusher != nil {
		flusher.Flush()
	}
}

func (b *backend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.issued[bearer(r)]
	return ok
}

func writeChunk(w io.Writer, id, content string, finish *string) {
	data, _ := json.Marshal(map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "deepseek-chat",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]string{"content": content},
			"finish_reason": finish,
		}},
	})
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

// lastUserTurn returns the line of the final user turn in a merged prompt,
// or the whole prompt when it carries no role prefixes.
func lastUserTurn(prompt string) string {
	i := strings.LastIndex(prompt, "\n"+userPrefix)
	switch {
	case i >= 0:
		prompt = prompt[i+1+len(userPrefix):]
	case strings.HasPrefix(prompt, userPrefix):
		prompt = prompt[len(userPrefix):]
	default:
		return strings.TrimSpace(prompt)
	}
	if line, _, ok := strings.Cut(prompt, "\n"); ok {
		prompt = line
	}
	return strings.TrimSpace(prompt)
}

// splitWords splits s into pieces that keep their leading space, so that
// concatenating them yields s again.
func splitWords(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == ' ' {
			out = append(out, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func newAccessToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return "mock-" + hex.EncodeToString(b)
}

func mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..."
}

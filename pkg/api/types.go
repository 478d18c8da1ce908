package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Object kinds and finish reasons used on the outward protocol.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectModel               = "model"
	ObjectList                = "list"

	FinishReasonStop = "stop"
)

// ContentPartTypeText is the only content part type forwarded upstream.
const ContentPartTypeText = "text"

// ---------------------------------------------------------------------------
// Request types
// ---------------------------------------------------------------------------

// ChatCompletionRequest is the body of POST /v1/chat/completions.
// Sampling parameters are accepted for client compatibility but the
// upstream ignores them.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	User        string        `json:"user,omitempty"`
}

// ChatMessage is one role-tagged entry of a conversation.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ContentPart is one element of a structured message content list.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image attached to a content part.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// MessageContent holds either a plain string or a list of content parts.
// The zero value is an empty plain string.
type MessageContent struct {
	Parts []ContentPart

	// structured is true when the content arrived as a JSON array.
	structured bool
	text       string
}

// TextContent builds plain string content.
func TextContent(s string) MessageContent {
	return MessageContent{text: s}
}

// PartsContent builds structured content from parts.
func PartsContent(parts ...ContentPart) MessageContent {
	return MessageContent{Parts: parts, structured: true}
}

// IsStructured reports whether the content is a list of parts.
func (c MessageContent) IsStructured() bool {
	return c.structured
}

// Texts returns the text fragments carried by the content in order.
// Plain content yields exactly one fragment; structured content yields
// one fragment per text part and skips every other part type.
func (c MessageContent) Texts() []string {
	if !c.structured {
		return []string{c.text}
	}
	var out []string
	for _, p := range c.Parts {
		if p.Type != ContentPartTypeText {
			continue
		}
		out = append(out, p.Text)
	}
	return out
}

// Size returns the byte length of all text fragments.
func (c MessageContent) Size() int {
	n := 0
	for _, t := range c.Texts() {
		n += len(t)
	}
	return n
}

// MarshalJSON emits a string for plain content and an array otherwise.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.structured {
		parts := c.Parts
		if parts == nil {
			parts = []ContentPart{}
		}
		return json.Marshal(parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a string, an array of parts, or null.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = MessageContent{structured: true}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	case data[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

// Usage holds token counters. The upstream reports none, so the gateway
// always returns placeholder values.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// PlaceholderUsage returns the fixed counters reported on every answer.
func PlaceholderUsage() *Usage {
	return &Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}
}

// AssistantMessage is the message carried by a synchronous answer.
type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice is one entry in ChatCompletion.Choices.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// ChatCompletion is the synchronous answer object.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Object  string   `json:"object"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage"`
	Created int64    `json:"created"`
}

// Content returns the content of the first choice.
func (c *ChatCompletion) Content() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

// Delta is the incremental message fragment of a chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// ChunkChoice is one entry in ChatCompletionChunk.Choices. FinishReason is
// serialized as null until the terminal chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one frame of the incremental protocol.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Object  string        `json:"object"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
	Created int64         `json:"created"`
}

// FinishReason returns the finish reason of the first choice, or "".
func (c *ChatCompletionChunk) FinishReason() string {
	if c == nil || len(c.Choices) == 0 || c.Choices[0].FinishReason == nil {
		return ""
	}
	return *c.Choices[0].FinishReason
}

// StopReason returns a pointer to FinishReasonStop for chunk construction.
func StopReason() *string {
	s := FinishReasonStop
	return &s
}

// ---------------------------------------------------------------------------
// Model listing
// ---------------------------------------------------------------------------

// Model describes one entry of GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

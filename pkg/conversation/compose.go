// Package conversation merges chat messages into the single text prompt
// the upstream accepts.
//
// The upstream has no multi-turn API: every completion call carries one
// free-form message. A lone message is forwarded as-is; a longer exchange
// is flattened into role-prefixed lines followed by an "assistant:" cue.
package conversation

import (
	"regexp"
	"strings"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
)

// continuationCue ends a merged exchange so the upstream answers as the assistant.
const continuationCue = api.RoleAssistant + ":"

// markdownImage matches inline markdown image references such as ![alt](url).
var markdownImage = regexp.MustCompile(`!\[[^\]\n]*\]\([^)\n]*\)`)

// Compose returns the upstream prompt for messages.
//
// With fewer than two messages every text fragment is emitted on its own
// line without a role prefix. Otherwise each fragment becomes "role:text",
// the continuation cue is appended and markdown images are removed.
// Non-text content parts are skipped.
func Compose(messages []api.ChatMessage) string {
	var b strings.Builder

	if len(messages) < 2 {
		for _, msg := range messages {
			for _, text := range msg.Content.Texts() {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		prompt := b.String()
		logPrompt("single-turn prompt", prompt, len(messages))
		return prompt
	}

	for _, msg := range messages {
		for _, text := range msg.Content.Texts() {
			b.WriteString(msg.Role)
			b.WriteByte(':')
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	b.WriteString(continuationCue)

	prompt := StripImages(b.String())
	logPrompt("merged conversation", prompt, len(messages))
	return prompt
}

// StripImages removes every inline markdown image reference from s.
func StripImages(s string) string {
	return markdownImage.ReplaceAllString(s, "")
}

func logPrompt(msg, prompt string, messages int) {
	if debug.TraceIsEnabled("conversation") {
		debug.Trace("conversation", msg, "messages", messages, "prompt", prompt)
		return
	}
	debug.Log("conversation", msg, "messages", messages, "chars", len(prompt), "preview", debug.Truncate(prompt, 120))
}

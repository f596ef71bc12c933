// Package memory assembles the bounded prompt context for a turn from stored
// history. Assembly is pure: nothing is persisted and nothing is cached.
package memory

import (
	"github.com/sashabaranov/go-openai"

	"github.com/reviewagent/reviewagent/internal/store"
)

// Assembler builds a ConversationContext: a fixed system instruction, the
// trailing window of prior messages oldest-first, then the new utterance.
type Assembler struct {
	// Window is the maximum number of prior messages included. Older
	// messages beyond the window are dropped, oldest first; no
	// summarization is attempted.
	Window int
}

// Assemble builds the message sequence for one turn.
func (a Assembler) Assemble(history []store.Message, utterance string) []openai.ChatCompletionMessage {
	if a.Window > 0 && len(history) > a.Window {
		history = history[len(history)-a.Window:]
	}

	system := SystemPrompt
	if len(history) > 0 {
		system += historyContext
	}

	out := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == store.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: utterance,
	})
	return out
}

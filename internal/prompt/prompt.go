package prompt

import (
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vitalhq/medsearch/internal/budget"
)

// Role describes how instructions can be delivered to a model. Some
// providers reject the system role outright, so the selector decides per
// model whether instructions ride in a system message or are folded into the
// user turn. The decision is pure and recomputed on every call.
type Role int

const (
	SystemCapable Role = iota
	SystemFree
)

// SystemInstruction is the standing instruction for every generation.
const SystemInstruction = "You are a concise, cautious medical assistant. When uncertain, say you are not a doctor " +
	"and recommend clinical consult. Use only the provided source documents."

// DefaultBlockedPrefixes lists model families known to reject a system role.
var DefaultBlockedPrefixes = []string{"google/gemma"}

// Selector maps model identifiers to prompt shapes.
type Selector struct {
	// BlockedPrefixes are model-name prefixes of system-role-rejecting
	// families. Empty means DefaultBlockedPrefixes.
	BlockedPrefixes []string
}

// RoleFor returns the prompt shape for the given model identifier. An empty
// model is assumed system-capable.
func (s Selector) RoleFor(model string) Role {
	prefixes := s.BlockedPrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultBlockedPrefixes
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(model, p) {
			return SystemFree
		}
	}
	return SystemCapable
}

// Messages builds the chat messages for a question and serialized context in
// the shape the model accepts. SystemCapable issues a separate system
// message; SystemFree concatenates the instruction into the single user turn.
func (s Selector) Messages(model, question string, docs []budget.Document) []openai.ChatCompletionMessage {
	ctx := SerializeContext(docs)
	if s.RoleFor(model) == SystemCapable {
		return []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: question + "\n\nContext:\n" + ctx},
		}
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: SystemInstruction + "\n\nQuestion: " + question + "\n\nContext:\n" + ctx},
	}
}

// SerializeContext renders budgeted documents as a numbered source list.
func SerializeContext(docs []budget.Document) string {
	if len(docs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("] ")
		if d.Meta.Title != "" {
			sb.WriteString(d.Meta.Title)
			sb.WriteString(" — ")
		}
		sb.WriteString(d.Meta.Source)
		sb.WriteString("\n")
		sb.WriteString(d.Content)
	}
	return sb.String()
}

package llm

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons reported on the last Chunk of a stream.
const (
	FinishStop = "stop"

	// FinishLength and FinishMaxTokens both mean the output ceiling was hit.
	// OpenAI-compatible backends report the former, Anthropic the latter.
	FinishLength    = "length"
	FinishMaxTokens = "max_tokens"

	FinishError = "error"
)

// IsTruncation reports whether reason signals that generation stopped because
// the output ceiling was reached.
func IsTruncation(reason string) bool {
	return reason == FinishLength || reason == FinishMaxTokens
}

// Message represents a single message in a conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the largest ceiling a single completion may request.
	MaxOutputTokens int

	SupportsStreaming bool
}

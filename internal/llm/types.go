package llm

// Chat roles understood by OpenAI-compatible servers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams overrides per-request generation settings.
// Zero values keep the client model and the server defaults.
type ChatParams struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

package llm

// Chat roles understood by OpenAI-compatible servers.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams overrides per-request generation settings. Zero values leave the
// server or client defaults in place.
type ChatParams struct {
	// Model overrides the client's model when set.
	Model string

	// MaxTokens caps generated tokens; 0 means no cap.
	MaxTokens int

	// Temperature controls sampling; 0 uses the server default.
	Temperature float32
}

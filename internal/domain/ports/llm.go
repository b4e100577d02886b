package ports

import "context"

// ChatClient is the external LLM used for meeting summaries.
type ChatClient interface {
	// Chat sends one system + one user message to the model behind modelKey
	// and returns the raw completion text.
	Chat(ctx context.Context, systemMsg, userMsg, modelKey string) (string, error)
	// Configured reports whether an API key is available at all.
	Configured() bool
}

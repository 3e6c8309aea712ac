// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports).
package driven

import "context"

// ChatMessage represents a single message in a conversation sent to the
// inference provider.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// TokenFunc receives streamed tokens as they are produced. Returning an
// error stops generation; the provider must release all resources and
// leave no background work running.
type TokenFunc func(token string) error

// InferenceProvider supplies embeddings and chat completions. Any
// implementation satisfying this interface is interchangeable: local
// (Ollama), remote, or a composed fallback provider.
//
// All operations other than IsAvailable return a *domain.ProviderError
// classifying the failure (not-running, model-not-found, timeout,
// malformed-response).
type InferenceProvider interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. Calls may be
	// parallelised internally up to a bounded concurrency to avoid
	// overwhelming a resource-constrained local backend.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Chat generates a completion for the given messages.
	Chat(ctx context.Context, messages []ChatMessage, system string) (string, error)

	// StreamChat generates a completion, delivering tokens to onToken
	// as they are produced. Cancelling ctx stops provider generation.
	// The full response text is returned once streaming completes.
	StreamChat(ctx context.Context, messages []ChatMessage, system string, onToken TokenFunc) (string, error)

	// IsAvailable reports whether the provider is reachable. It never
	// errors and is used for health and degradation decisions.
	IsAvailable(ctx context.Context) bool

	// EmbeddingModel returns the identifier of the embedding model.
	EmbeddingModel() string

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

package services

import (
	"context"
	"strings"

	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// fakeProvider is a scripted inference provider for service tests.
// Each function field overrides the default behavior when set.
type fakeProvider struct {
	embedFn  func(text string) ([]float32, error)
	chatFn   func(messages []driven.ChatMessage, system string) (string, error)
	streamFn func(messages []driven.ChatMessage, system string, onToken driven.TokenFunc) (string, error)

	unavailable bool
	model       string
	dims        int

	// call log, for asserting prompt flow
	chatCalls []string
}

var _ driven.InferenceProvider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{model: "fake-embed", dims: 4}
}

// defaultEmbed produces a deterministic vector from character counts so
// that similar texts land near each other.
func defaultEmbed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for i, r := range strings.ToLower(text) {
		vec[i%dims] += float32(r%13) + 1
	}
	return vec
}

func (p *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.embedFn != nil {
		return p.embedFn(text)
	}
	return defaultEmbed(text, p.dims), nil
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *fakeProvider) Chat(_ context.Context, messages []driven.ChatMessage, system string) (string, error) {
	p.chatCalls = append(p.chatCalls, system)
	if p.chatFn != nil {
		return p.chatFn(messages, system)
	}
	return "", nil
}

func (p *fakeProvider) StreamChat(ctx context.Context, messages []driven.ChatMessage, system string, onToken driven.TokenFunc) (string, error) {
	if p.streamFn != nil {
		return p.streamFn(messages, system, onToken)
	}
	full, err := p.Chat(ctx, messages, system)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(full, " ") {
		if err := onToken(word); err != nil {
			return "", err
		}
	}
	return full, nil
}

func (p *fakeProvider) IsAvailable(_ context.Context) bool { return !p.unavailable }
func (p *fakeProvider) EmbeddingModel() string             { return p.model }
func (p *fakeProvider) Dimensions() int                    { return p.dims }

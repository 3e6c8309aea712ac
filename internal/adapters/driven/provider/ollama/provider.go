// Package ollama provides an inference provider adapter using Ollama.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.InferenceProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultEmbedModel = "nomic-embed-text"
	DefaultChatModel  = "llama3.2"
	DefaultDimensions = 768 // nomic-embed-text default

	DefaultChatTimeout  = 120 * time.Second
	DefaultEmbedTimeout = 60 * time.Second
	availabilityTimeout = 5 * time.Second

	// DefaultBatchConcurrency bounds parallel embedding calls so a
	// local backend is not overwhelmed.
	DefaultBatchConcurrency = 4

	// requestsPerSecond is the rate limit across all inference calls.
	requestsPerSecond = 10
)

// Config holds configuration for the Ollama provider.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// EmbedModel is the embedding model (default: nomic-embed-text).
	EmbedModel string

	// ChatModel is the chat model (default: llama3.2).
	ChatModel string

	// Dimensions is the embedding vector size (model-dependent).
	Dimensions int

	// ChatTimeout is the chat request timeout (default: 120s).
	ChatTimeout time.Duration

	// EmbedTimeout is the per-embedding request timeout (default: 60s).
	EmbedTimeout time.Duration

	// BatchConcurrency bounds parallel EmbedBatch calls (default: 4).
	BatchConcurrency int
}

// Provider supplies embeddings and chat completions from a local
// Ollama instance. All inference calls share one rate limiter.
type Provider struct {
	client      *http.Client
	baseURL     string
	embedModel  string
	chatModel   string
	dimensions  int
	concurrency int
	limiter     *rate.Limiter
}

// Ollama API request/response formats.

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// New creates an Ollama provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = DefaultChatTimeout
	}
	if cfg.EmbedTimeout == 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}

	timeout := cfg.ChatTimeout
	if cfg.EmbedTimeout > timeout {
		timeout = cfg.EmbedTimeout
	}

	return &Provider{
		client:      &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		embedModel:  cfg.EmbedModel,
		chatModel:   cfg.ChatModel,
		dimensions:  cfg.Dimensions,
		concurrency: cfg.BatchConcurrency,
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// Embed generates a vector embedding for the given text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, classifyError(err)
	}

	body, err := p.post(ctx, "/api/embeddings", embedRequest{Model: p.embedModel, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var embedResp embedResponse
	if err := json.NewDecoder(body).Decode(&embedResp); err != nil {
		return nil, domain.NewProviderError(domain.ProviderMalformedResponse, "decode embedding response", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, domain.NewProviderError(domain.ProviderMalformedResponse, "empty embedding", nil)
	}

	embedding := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// EmbedBatch generates embeddings for multiple texts. Ollama has no
// native batch API, so calls run in parallel with bounded concurrency.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			embedding, err := p.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			embeddings[i] = embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Chat generates a completion for the given messages.
func (p *Provider) Chat(ctx context.Context, messages []driven.ChatMessage, system string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", classifyError(err)
	}

	body, err := p.post(ctx, "/api/chat", chatRequest{
		Model:    p.chatModel,
		Messages: toOllamaMessages(messages, system),
		Stream:   false,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(body).Decode(&chatResp); err != nil {
		return "", domain.NewProviderError(domain.ProviderMalformedResponse, "decode chat response", err)
	}
	return chatResp.Message.Content, nil
}

// StreamChat generates a completion, decoding Ollama's NDJSON stream
// and delivering each token to onToken. Cancelling ctx aborts the
// request, which stops generation server-side.
func (p *Provider) StreamChat(ctx context.Context, messages []driven.ChatMessage, system string, onToken driven.TokenFunc) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", classifyError(err)
	}

	body, err := p.post(ctx, "/api/chat", chatRequest{
		Model:    p.chatModel,
		Messages: toOllamaMessages(messages, system),
		Stream:   true,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return full.String(), domain.NewProviderError(domain.ProviderMalformedResponse, "decode stream chunk", err)
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			if onToken != nil {
				if err := onToken(chunk.Message.Content); err != nil {
					return full.String(), err
				}
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), classifyError(err)
	}
	return full.String(), nil
}

// IsAvailable reports whether Ollama is reachable. It never errors.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of models installed in Ollama.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, domain.NewProviderError(domain.ProviderMalformedResponse, "decode tags response", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// EmbeddingModel returns the identifier of the embedding model.
func (p *Provider) EmbeddingModel() string {
	return p.embedModel
}

// Dimensions returns the embedding vector size.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// post sends a JSON request and returns the response body on 200.
func (p *Provider) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func toOllamaMessages(messages []driven.ChatMessage, system string) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		out = append(out, chatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// classifyError maps transport failures onto the provider error
// taxonomy.
func classifyError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewProviderError(domain.ProviderTimeout, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewProviderError(domain.ProviderTimeout, "request timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.NewProviderError(domain.ProviderNotRunning, "ollama is not reachable", err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return domain.NewProviderError(domain.ProviderNotRunning, "ollama is not reachable", err)
	}

	return domain.NewProviderError(domain.ProviderNotRunning, "request failed", err)
}

// statusError maps non-200 responses onto the provider error taxonomy.
// Ollama answers 404 with a "model not found" message for missing
// models.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := fmt.Sprintf("ollama error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))

	if resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(string(body)), "not found") {
		return domain.NewProviderError(domain.ProviderModelNotFound, message, nil)
	}
	return domain.NewProviderError(domain.ProviderMalformedResponse, message, nil)
}

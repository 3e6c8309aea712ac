package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-labs/mnemo/internal/chunker"
	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo/internal/logger"
	"github.com/mnemo-labs/mnemo/internal/workflow"
)

// TaskDiscoverConnections is the queue task kind the Connect step
// enqueues after an item completes processing.
const TaskDiscoverConnections = "discover-connections"

// extractRetryLoop names the validate->extract retry cycle.
const extractRetryLoop = "extract-retry"

// maxExtractRetries bounds how many times extraction is retried with a
// stricter prompt after failing validation.
const maxExtractRetries = 2

// trivialTokenThreshold separates inputs too short to demand concepts
// from real documents.
const trivialTokenThreshold = 50

const extractSystemPrompt = `You extract metadata from documents.
Respond with a single JSON object and nothing else:
{"summary": "<2-3 sentence summary>", "concepts": ["<key concept>", ...], "entities": ["<named person/org/place>", ...]}`

const extractStrictPrompt = extractSystemPrompt + `
Your previous response was rejected. The summary must be non-empty and
there must be at least one concept. Output only the JSON object, with no
markdown fences and no commentary.`

// procState is the typed state flowing through the processing graph.
// It must survive a JSON round trip for checkpointing.
type procState struct {
	ItemID string             `json:"item_id"`
	Kind   domain.ContentKind `json:"kind"`
	Raw    string             `json:"raw"`

	Title    string           `json:"title"`
	Text     string           `json:"text"`
	Chunks   []domain.Chunk   `json:"chunks"`
	Metadata *domain.Metadata `json:"metadata"`
	Valid    bool             `json:"valid"`
}

// Processor runs the processing pipeline: classify -> parse -> chunk ->
// embed -> extract -> validate (-> retry extract) -> store -> connect.
type Processor struct {
	items    driven.ItemStore
	chunks   driven.ChunkStore
	provider driven.InferenceProvider
	parsers  driven.ParserRegistry
	queue    driven.TaskQueue
	chunker  *chunker.Chunker
	engine   *workflow.Engine[procState]
}

var _ driving.ItemProcessor = (*Processor)(nil)

// NewProcessor creates the processing pipeline service.
func NewProcessor(
	items driven.ItemStore,
	chunks driven.ChunkStore,
	provider driven.InferenceProvider,
	parsers driven.ParserRegistry,
	queue driven.TaskQueue,
	ck *chunker.Chunker,
	checkpoints driven.CheckpointStore,
) (*Processor, error) {
	p := &Processor{
		items:    items,
		chunks:   chunks,
		provider: provider,
		parsers:  parsers,
		queue:    queue,
		chunker:  ck,
	}

	graph := workflow.NewGraph[procState]("processing", "classify").
		AddNode("classify", p.classifyNode).
		AddNode("parse", p.parseNode).
		AddNode("chunk", p.chunkNode).
		AddNode("embed", p.embedNode).
		AddNode("extract", p.extractNode).
		AddNode("validate", p.validateNode).
		AddNode("fail-extraction", p.failExtractionNode).
		AddNode("store", p.storeNode).
		AddNode("connect", p.connectNode).
		AddEdge("classify", "parse").
		AddEdge("parse", "chunk").
		AddEdge("chunk", "embed").
		AddEdge("embed", "extract").
		AddEdge("extract", "validate").
		AddConditionalEdge("validate", "extract", func(s procState) bool { return !s.Valid }).
		AddEdge("validate", "store").
		AddLoop(workflow.Loop{
			Name:        extractRetryLoop,
			From:        "validate",
			To:          "extract",
			MaxRetries:  maxExtractRetries,
			OnExhausted: "fail-extraction",
		}).
		AddEdge("fail-extraction", workflow.End).
		AddEdge("store", "connect").
		AddEdge("connect", workflow.End)

	var opts []workflow.Option[procState]
	if checkpoints != nil {
		opts = append(opts, workflow.WithCheckpoints[procState](checkpoints))
	}
	engine, err := workflow.NewEngine(graph, opts...)
	if err != nil {
		return nil, err
	}
	p.engine = engine
	return p, nil
}

// Capture stores a new pending item and processes it synchronously.
func (p *Processor) Capture(ctx context.Context, title, content string, kind domain.ContentKind, sourceURI string) (*domain.Item, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is empty", domain.ErrInvalidInput)
	}
	if _, err := p.parsers.ParserFor(kind); err != nil {
		return nil, err
	}

	now := time.Now()
	item := &domain.Item{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   content,
		Kind:      kind,
		SourceURI: sourceURI,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.items.SaveItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save captured item: %w", err)
	}

	if err := p.ProcessItem(ctx, item.ID); err != nil {
		// The item is stored with status failed and stays retryable.
		return p.items.GetItem(ctx, item.ID)
	}
	return p.items.GetItem(ctx, item.ID)
}

// ProcessItem processes a captured item end to end. Reprocessing a
// completed item replaces its chunks, embeddings, and metadata.
func (p *Processor) ProcessItem(ctx context.Context, itemID string) error {
	item, err := p.items.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}

	logger.Section(fmt.Sprintf("Processing %s (%s)", item.ID, item.Kind))

	item.Status = domain.StatusProcessing
	item.Error = ""
	item.UpdatedAt = time.Now()
	if err := p.items.SaveItem(ctx, item); err != nil {
		return fmt.Errorf("mark item processing: %w", err)
	}

	initial := procState{ItemID: item.ID, Kind: item.Kind, Raw: item.Content, Title: item.Title}
	if _, err := p.engine.Run(ctx, initial); err != nil {
		logger.Warn("Processing %s failed: %v", item.ID, err)
		item.Status = domain.StatusFailed
		item.Error = err.Error()
		item.UpdatedAt = time.Now()
		if saveErr := p.items.SaveItem(ctx, item); saveErr != nil {
			return fmt.Errorf("record failure for item %s: %v (original: %w)", item.ID, saveErr, err)
		}
		return err
	}
	return nil
}

// classifyNode routes by content kind, rejecting kinds with no parser.
func (p *Processor) classifyNode(_ context.Context, s procState) (procState, error) {
	if _, err := p.parsers.ParserFor(s.Kind); err != nil {
		return s, err
	}
	return s, nil
}

// parseNode extracts plain text with the kind-specific parser.
func (p *Processor) parseNode(ctx context.Context, s procState) (procState, error) {
	parser, err := p.parsers.ParserFor(s.Kind)
	if err != nil {
		return s, err
	}

	title, text, err := parser.Parse(ctx, s.Raw)
	if err != nil {
		return s, fmt.Errorf("parse (%s): %w", parser.Name(), err)
	}
	if strings.TrimSpace(text) == "" {
		return s, domain.ErrEmptyContent
	}

	s.Text = text
	if s.Title == "" && title != "" {
		s.Title = title
	}
	logger.Debug("Parsed %d chars from %s content", len(text), s.Kind)
	return s, nil
}

func (p *Processor) chunkNode(_ context.Context, s procState) (procState, error) {
	s.Chunks = p.chunker.Chunk(s.ItemID, s.Text)
	if len(s.Chunks) == 0 {
		return s, domain.ErrEmptyContent
	}
	logger.Info("Chunked into %d segments", len(s.Chunks))
	return s, nil
}

// embedNode generates one embedding per chunk, tagged with the model.
func (p *Processor) embedNode(ctx context.Context, s procState) (procState, error) {
	texts := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		texts[i] = c.Content
	}

	var embeddings [][]float32
	err := retryProvider(ctx, func() error {
		var embedErr error
		embeddings, embedErr = p.provider.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return s, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(embeddings) != len(s.Chunks) {
		return s, domain.NewProviderError(domain.ProviderMalformedResponse,
			fmt.Sprintf("got %d embeddings for %d chunks", len(embeddings), len(s.Chunks)), nil)
	}

	model := p.provider.EmbeddingModel()
	for i := range s.Chunks {
		s.Chunks[i].Embedding = embeddings[i]
		s.Chunks[i].EmbeddingModel = model
	}
	logger.Info("Embedded %d chunks with %s", len(s.Chunks), model)
	return s, nil
}

// extractNode asks the provider for summary/concepts/entities. Retries
// triggered by validation use a stricter prompt.
func (p *Processor) extractNode(ctx context.Context, s procState) (procState, error) {
	system := extractSystemPrompt
	if workflow.Attempts(ctx, extractRetryLoop) > 0 {
		system = extractStrictPrompt
	}

	messages := []driven.ChatMessage{{Role: "user", Content: s.Text}}
	var raw string
	err := retryProvider(ctx, func() error {
		var chatErr error
		raw, chatErr = p.provider.Chat(ctx, messages, system)
		return chatErr
	})
	if err != nil {
		return s, fmt.Errorf("extract metadata: %w", err)
	}

	// A malformed JSON response is a quality failure handled by the
	// validate->extract loop, not a terminal error.
	meta, parseErr := parseExtraction(raw)
	if parseErr != nil {
		logger.Warn("Extraction response not parseable: %v", parseErr)
		s.Metadata = nil
		return s, nil
	}
	s.Metadata = meta
	return s, nil
}

// validateNode checks the extraction is well-formed and non-trivial.
func (p *Processor) validateNode(_ context.Context, s procState) (procState, error) {
	s.Valid = s.Metadata != nil &&
		strings.TrimSpace(s.Metadata.Summary) != ""
	if s.Valid && chunker.EstimateTokens(s.Text) >= trivialTokenThreshold {
		s.Valid = len(s.Metadata.Concepts) > 0
	}
	if !s.Valid {
		logger.Warn("Extraction failed validation for item %s", s.ItemID)
	}
	return s, nil
}

func (p *Processor) failExtractionNode(_ context.Context, s procState) (procState, error) {
	return s, domain.ErrExtractionFailed
}

// storeNode persists chunks and metadata and completes the item.
func (p *Processor) storeNode(ctx context.Context, s procState) (procState, error) {
	if err := p.chunks.ReplaceChunks(ctx, s.ItemID, s.Chunks); err != nil {
		return s, fmt.Errorf("store chunks: %w", err)
	}

	item, err := p.items.GetItem(ctx, s.ItemID)
	if err != nil {
		return s, fmt.Errorf("reload item: %w", err)
	}
	if s.Title != "" {
		item.Title = s.Title
	}
	item.Metadata = s.Metadata
	item.Status = domain.StatusCompleted
	item.Error = ""
	item.UpdatedAt = time.Now()
	if err := p.items.SaveItem(ctx, item); err != nil {
		return s, fmt.Errorf("complete item: %w", err)
	}
	logger.Info("Item %s completed", s.ItemID)
	return s, nil
}

// connectNode enqueues connection discovery. Enqueue failure never
// fails the run; the item is already completed.
func (p *Processor) connectNode(ctx context.Context, s procState) (procState, error) {
	task := driven.Task{Kind: TaskDiscoverConnections, ItemID: s.ItemID}
	if err := p.queue.Enqueue(ctx, task); err != nil {
		logger.Warn("Could not enqueue connection discovery for %s: %v", s.ItemID, err)
	}
	return s, nil
}

// parseExtraction decodes the provider's JSON metadata response,
// tolerating markdown code fences around the object.
func parseExtraction(raw string) (*domain.Metadata, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var meta domain.Metadata
	if err := json.Unmarshal([]byte(cleaned), &meta); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &meta, nil
}

package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo/internal/logger"
	"github.com/mnemo-labs/mnemo/internal/workflow"
)

const (
	// rewriteRetryLoop names the grade->rewrite retry cycle.
	rewriteRetryLoop = "rewrite-retry"

	// maxRewriteRetries bounds query rewrites when grading leaves zero
	// relevant chunks.
	maxRewriteRetries = 2

	// regenerateLoop names the ground->regenerate cycle.
	regenerateLoop = "regenerate"

	// chatRetrievalLimit is how many candidate chunks retrieval feeds
	// into grading.
	chatRetrievalLimit = 8

	// chatHistoryLimit bounds how many prior messages condition the
	// answer.
	chatHistoryLimit = 10

	// snippetRunes bounds citation snippet length.
	snippetRunes = 140
)

// NoContentAnswer is returned when nothing relevant is stored. Honest
// emptiness, never a fabricated answer.
const NoContentAnswer = "I couldn't find anything relevant in your knowledge base to answer that."

const gradeSystemPrompt = `You grade search results for relevance.
Given a question and numbered sources, reply with the numbers of the
sources that help answer the question, comma separated (e.g. "1,3").
Reply "none" if no source is relevant. Reply with nothing else.`

const generateSystemPrompt = `You answer questions using only the
numbered sources provided. Cite every source you draw from inline as
[n]. If the sources do not contain the answer, say so plainly. Never
invent information that is not in the sources.`

const regenerateSystemPrompt = generateSystemPrompt + `
Your previous answer contained claims not supported by the sources.
Answer again using ONLY statements directly supported by the sources,
and cite each one as [n]. Omit anything you cannot cite.`

const groundSystemPrompt = `You verify answers against sources. Given
numbered sources and an answer, reply "yes" if every factual claim in
the answer is supported by at least one source, otherwise reply "no".
Reply with one word only.`

const rewriteSystemPrompt = `You rewrite questions into search queries.
Given a question, reply with a short keyword query capturing what to
look up. Reply with the query only.`

// chatState is the typed state flowing through the chat graph. The
// token callback rides along untouched by checkpointing (chat runs are
// never checkpointed).
type chatState struct {
	Question       string               `json:"question"`
	RetrievalQuery string               `json:"retrieval_query"`
	History        []driven.ChatMessage `json:"history"`

	Ranked      []domain.RankedChunk `json:"ranked"`
	Graded      []domain.RankedChunk `json:"graded"`
	Answer      string               `json:"answer"`
	Citations   []domain.Citation    `json:"citations"`
	Grounded    bool                 `json:"grounded"`
	Regenerated bool                 `json:"regenerated"`
	NoContent   bool                 `json:"no_content"`

	onToken driven.TokenFunc
}

// Chat runs the retrieval-augmented chat pipeline: retrieve -> grade ->
// (rewrite, <=2) -> generate -> ground -> (regenerate once) -> return.
type Chat struct {
	retriever     *Retriever
	provider      driven.InferenceProvider
	conversations driven.ConversationStore
	engine        *workflow.Engine[chatState]

	// mu serialises turns per conversation so citations and context
	// stay coherent.
	mu sync.Map // conversationID -> *sync.Mutex
}

var _ driving.ChatService = (*Chat)(nil)

// NewChat creates the chat pipeline service.
func NewChat(retriever *Retriever, provider driven.InferenceProvider, conversations driven.ConversationStore) (*Chat, error) {
	c := &Chat{
		retriever:     retriever,
		provider:      provider,
		conversations: conversations,
	}

	graph := workflow.NewGraph[chatState]("chat", "retrieve").
		AddNode("retrieve", c.retrieveNode).
		AddNode("grade", c.gradeNode).
		AddNode("rewrite", c.rewriteNode).
		AddNode("no-content", c.noContentNode).
		AddNode("generate", c.generateNode).
		AddNode("ground", c.groundNode).
		AddNode("regenerate", c.regenerateNode).
		AddEdge("retrieve", "grade").
		AddConditionalEdge("grade", "rewrite", func(s chatState) bool { return len(s.Graded) == 0 }).
		AddEdge("grade", "generate").
		AddLoop(workflow.Loop{
			Name:        rewriteRetryLoop,
			From:        "grade",
			To:          "rewrite",
			MaxRetries:  maxRewriteRetries,
			OnExhausted: "no-content",
		}).
		AddEdge("rewrite", "retrieve").
		AddEdge("no-content", workflow.End).
		AddEdge("generate", "ground").
		AddConditionalEdge("ground", "regenerate", func(s chatState) bool { return !s.Grounded && !s.Regenerated }).
		AddEdge("ground", workflow.End).
		AddLoop(workflow.Loop{
			Name:       regenerateLoop,
			From:       "ground",
			To:         "regenerate",
			MaxRetries: 1,
		}).
		AddEdge("regenerate", "ground")

	engine, err := workflow.NewEngine(graph)
	if err != nil {
		return nil, err
	}
	c.engine = engine
	return c, nil
}

// NewConversation creates an empty conversation.
func (c *Chat) NewConversation(ctx context.Context, title string) (*domain.Conversation, error) {
	now := time.Now()
	conv := &domain.Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// SendMessage runs one chat turn. Turns on the same conversation are
// serialised; messages are appended in strict send order.
func (c *Chat) SendMessage(ctx context.Context, conversationID, text string, onToken driven.TokenFunc) (*domain.ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}

	lock, _ := c.mu.LoadOrStore(conversationID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if _, err := c.conversations.GetConversation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}

	history, err := c.loadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	if err := c.conversations.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	logger.Section(fmt.Sprintf("Chat turn in %s", conversationID))

	final, err := c.engine.Run(ctx, chatState{
		Question:       text,
		RetrievalQuery: text,
		History:        history,
		onToken:        onToken,
	})
	if err != nil {
		return nil, err
	}

	verified := final.Grounded || final.NoContent
	assistantMsg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        final.Answer,
		Citations:      final.Citations,
		Verified:       verified,
		CreatedAt:      time.Now(),
	}
	if err := c.conversations.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	return &domain.ChatResult{
		Answer:    final.Answer,
		Citations: final.Citations,
		Verified:  verified,
		MessageID: assistantMsg.ID,
	}, nil
}

func (c *Chat) loadHistory(ctx context.Context, conversationID string) ([]driven.ChatMessage, error) {
	msgs, err := c.conversations.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(msgs) > chatHistoryLimit {
		msgs = msgs[len(msgs)-chatHistoryLimit:]
	}

	history := make([]driven.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, driven.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return history, nil
}

func (c *Chat) retrieveNode(ctx context.Context, s chatState) (chatState, error) {
	ranked, err := c.retriever.Retrieve(ctx, s.RetrievalQuery, chatRetrievalLimit)
	if err != nil {
		return s, err
	}
	s.Ranked = ranked
	return s, nil
}

// gradeNode asks the provider which retrieved chunks actually help
// answer the question, in one batched call.
func (c *Chat) gradeNode(ctx context.Context, s chatState) (chatState, error) {
	s.Graded = nil
	if len(s.Ranked) == 0 {
		return s, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", s.Question)
	for i, rc := range s.Ranked {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, rc.Chunk.Content)
	}

	var reply string
	err := retryProvider(ctx, func() error {
		var chatErr error
		reply, chatErr = c.provider.Chat(ctx, []driven.ChatMessage{{Role: "user", Content: b.String()}}, gradeSystemPrompt)
		return chatErr
	})
	if err != nil {
		return s, fmt.Errorf("grade chunks: %w", err)
	}

	for _, idx := range parseIndexList(reply, len(s.Ranked)) {
		s.Graded = append(s.Graded, s.Ranked[idx])
	}
	logger.Info("Graded %d/%d chunks relevant", len(s.Graded), len(s.Ranked))
	return s, nil
}

// rewriteNode reformulates the question for another retrieval pass.
// Provider failure degrades to the original query; the loop stays
// bounded either way.
func (c *Chat) rewriteNode(ctx context.Context, s chatState) (chatState, error) {
	var rewritten string
	err := retryProvider(ctx, func() error {
		var chatErr error
		rewritten, chatErr = c.provider.Chat(ctx, []driven.ChatMessage{{Role: "user", Content: s.Question}}, rewriteSystemPrompt)
		return chatErr
	})
	if err != nil {
		logger.Warn("Query rewrite unavailable: %v", err)
		return s, nil
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten != "" && rewritten != s.RetrievalQuery {
		logger.Info("Rewrote retrieval query: %q", rewritten)
		s.RetrievalQuery = rewritten
	}
	return s, nil
}

// noContentNode produces the honest empty outcome.
func (c *Chat) noContentNode(_ context.Context, s chatState) (chatState, error) {
	s.Answer = NoContentAnswer
	s.Citations = nil
	s.NoContent = true
	return s, nil
}

// generateNode produces the answer, streaming tokens when a callback is
// attached.
func (c *Chat) generateNode(ctx context.Context, s chatState) (chatState, error) {
	messages := append(append([]driven.ChatMessage{}, s.History...), driven.ChatMessage{
		Role:    "user",
		Content: fmt.Sprintf("Sources:\n\n%s\nQuestion: %s", sourcesBlock(s.Graded), s.Question),
	})

	var answer string
	err := retryProvider(ctx, func() error {
		var genErr error
		if s.onToken != nil {
			answer, genErr = c.provider.StreamChat(ctx, messages, generateSystemPrompt, s.onToken)
		} else {
			answer, genErr = c.provider.Chat(ctx, messages, generateSystemPrompt)
		}
		return genErr
	})
	if err != nil {
		return s, fmt.Errorf("generate answer: %w", err)
	}

	s.Answer = strings.TrimSpace(answer)
	s.Citations = citationsFor(s.Answer, s.Graded)
	return s, nil
}

// groundNode verifies the whole answer is entailed by the cited
// sources. An answer citing nothing while sources exist fails the
// structural check before the provider is even asked. If verification
// itself is unavailable the answer is flagged unverified, not dropped.
func (c *Chat) groundNode(ctx context.Context, s chatState) (chatState, error) {
	if len(s.Citations) == 0 {
		s.Grounded = false
		logger.Warn("Answer cites no sources, marking ungrounded")
		return s, nil
	}

	prompt := fmt.Sprintf("Sources:\n\n%s\nAnswer: %s", sourcesBlock(s.Graded), s.Answer)
	var verdict string
	err := retryProvider(ctx, func() error {
		var chatErr error
		verdict, chatErr = c.provider.Chat(ctx, []driven.ChatMessage{{Role: "user", Content: prompt}}, groundSystemPrompt)
		return chatErr
	})
	if err != nil {
		logger.Warn("Grounding check unavailable, flagging unverified: %v", err)
		s.Grounded = false
		return s, nil
	}

	s.Grounded = strings.HasPrefix(strings.ToLower(strings.TrimSpace(verdict)), "yes")
	if !s.Grounded {
		logger.Warn("Answer failed grounding check")
	}
	return s, nil
}

// regenerateNode retries generation once with the citation-mandatory
// prompt. The regenerated answer replaces the streamed one.
func (c *Chat) regenerateNode(ctx context.Context, s chatState) (chatState, error) {
	s.Regenerated = true

	messages := append(append([]driven.ChatMessage{}, s.History...), driven.ChatMessage{
		Role:    "user",
		Content: fmt.Sprintf("Sources:\n\n%s\nQuestion: %s", sourcesBlock(s.Graded), s.Question),
	})

	var answer string
	err := retryProvider(ctx, func() error {
		var genErr error
		answer, genErr = c.provider.Chat(ctx, messages, regenerateSystemPrompt)
		return genErr
	})
	if err != nil {
		// Keep the original answer; it will surface as unverified.
		logger.Warn("Regeneration unavailable: %v", err)
		return s, nil
	}

	s.Answer = strings.TrimSpace(answer)
	s.Citations = citationsFor(s.Answer, s.Graded)
	return s, nil
}

// sourcesBlock renders graded chunks as numbered sources.
func sourcesBlock(graded []domain.RankedChunk) string {
	var b strings.Builder
	for i, rc := range graded {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, rc.Chunk.Content)
	}
	return b.String()
}

// citationsFor extracts [n] markers from the answer and resolves them
// against the graded chunks. Markers out of range are ignored, never
// fabricated into citations.
func citationsFor(answer string, graded []domain.RankedChunk) []domain.Citation {
	seen := make(map[int]bool)
	var citations []domain.Citation
	for _, idx := range parseCitationMarkers(answer) {
		if idx < 1 || idx > len(graded) || seen[idx] {
			continue
		}
		seen[idx] = true
		chunk := graded[idx-1].Chunk
		citations = append(citations, domain.Citation{
			ChunkID: chunk.ID,
			ItemID:  chunk.ItemID,
			Index:   idx,
			Snippet: snippet(chunk.Content),
		})
	}
	return citations
}

// parseCitationMarkers finds [n] references in generated text.
func parseCitationMarkers(text string) []int {
	var out []int
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		j := i + 1
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j > i+1 && j < len(text) && text[j] == ']' {
			if n, err := strconv.Atoi(text[i+1 : j]); err == nil {
				out = append(out, n)
			}
			i = j
		}
	}
	return out
}

// parseIndexList parses a grading reply like "1,3" into 0-based indices
// bounded by n.
func parseIndexList(reply string, n int) []int {
	reply = strings.ToLower(strings.TrimSpace(reply))
	if reply == "" || strings.Contains(reply, "none") {
		return nil
	}

	seen := make(map[int]bool)
	var out []int
	for _, field := range strings.FieldsFunc(reply, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		idx, err := strconv.Atoi(field)
		if err != nil || idx < 1 || idx > n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx-1)
	}
	return out
}

// snippet trims chunk content for citation display.
func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "…"
}

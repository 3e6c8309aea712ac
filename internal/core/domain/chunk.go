package domain

// Chunk is an ordered semantic segment of one item's text. Chunks are
// the unit of embedding and retrieval. They are immutable once created
// and replaced wholesale when an item is reprocessed.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// ItemID links to the owning Item.
	ItemID string

	// Position is the ordinal position within the item, starting at 0
	// and contiguous per item.
	Position int

	// Content is the text content of this chunk.
	Content string

	// TokenCount is the estimated token count of Content.
	TokenCount int

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// EmbeddingModel identifies the model that produced Embedding.
	// All stored embeddings must share one model and one dimension;
	// a mismatch is a data error, never silently tolerated.
	EmbeddingModel string
}

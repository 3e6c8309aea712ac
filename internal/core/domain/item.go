package domain

import (
	"strings"
	"time"
)

// ContentKind identifies the type of captured content.
type ContentKind string

// Supported content kinds.
const (
	KindWebPage ContentKind = "webpage"
	KindNote    ContentKind = "note"
	KindFile    ContentKind = "file"
)

// ItemStatus tracks an item through its processing lifecycle.
type ItemStatus string

// Item lifecycle states. An item is created as StatusPending, moves to
// StatusProcessing while the processing pipeline runs, and ends as either
// StatusCompleted or StatusFailed.
const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// Metadata holds information extracted from an item's content by the
// processing pipeline.
type Metadata struct {
	// Summary is a short extracted summary of the content.
	Summary string `json:"summary"`

	// Concepts are the key concepts covered by the content.
	Concepts []string `json:"concepts"`

	// Entities are named entities (people, organisations, places)
	// mentioned in the content.
	Entities []string `json:"entities"`
}

// Item represents a captured unit of content: a saved web page, a note,
// or an imported file. Items are created on capture and mutated only by
// the processing pipeline.
type Item struct {
	// ID is the unique identifier for the item.
	ID string

	// Title is the human-readable title.
	Title string

	// Content is the raw captured content before parsing.
	Content string

	// Kind classifies the content for kind-specific parsing.
	Kind ContentKind

	// SourceURI is the original location (URL, file path), if any.
	SourceURI string

	// Status is the processing lifecycle state.
	Status ItemStatus

	// Error records the failure reason when Status is StatusFailed.
	Error string

	// Metadata is populated by the extraction step of the processing
	// pipeline. Nil until processing completes.
	Metadata *Metadata

	// CreatedAt is when the item was captured.
	CreatedAt time.Time

	// UpdatedAt is when the item was last modified.
	UpdatedAt time.Time
}

// SharedEntities returns the entities that appear in both items'
// metadata. Matching is case-insensitive.
func (i *Item) SharedEntities(other *Item) []string {
	if i.Metadata == nil || other.Metadata == nil {
		return nil
	}

	theirs := make(map[string]bool, len(other.Metadata.Entities))
	for _, e := range other.Metadata.Entities {
		theirs[strings.ToLower(strings.TrimSpace(e))] = true
	}

	var shared []string
	for _, e := range i.Metadata.Entities {
		if theirs[strings.ToLower(strings.TrimSpace(e))] {
			shared = append(shared, e)
		}
	}
	return shared
}

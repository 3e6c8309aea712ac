// Package sqlite provides a unified SQLite-backed implementation of
// the storage ports. A single database file holds items, chunks (with
// their embeddings), the full-text index, connections, conversations
// and workflow checkpoints.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mnemo-labs/mnemo/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to all
// storage ports through wrapper types.
type Store struct {
	db   *sql.DB
	path string

	// itemLocks serialises chunk writes per item so concurrent
	// reprocessing of the same item cannot interleave delete and
	// insert phases.
	itemLocks sync.Map // itemID -> *sync.Mutex
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.mnemo/data/mnemo.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".mnemo", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "mnemo.db")

	// WAL mode keeps reads from blocking on background pipeline writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ItemStore returns an ItemStore interface backed by this store.
func (s *Store) ItemStore() driven.ItemStore {
	return &itemStore{store: s}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// ConnectionStore returns a ConnectionStore interface backed by this store.
func (s *Store) ConnectionStore() driven.ConnectionStore {
	return &connectionStore{store: s}
}

// ConversationStore returns a ConversationStore interface backed by this store.
func (s *Store) ConversationStore() driven.ConversationStore {
	return &conversationStore{store: s}
}

// CheckpointStore returns a CheckpointStore interface backed by this store.
func (s *Store) CheckpointStore() driven.CheckpointStore {
	return &checkpointStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// lockItem returns the mutex serialising writes for one item.
func (s *Store) lockItem(itemID string) *sync.Mutex {
	mu, _ := s.itemLocks.LoadOrStore(itemID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ==================== Item Store ====================

// itemStore implements driven.ItemStore.
type itemStore struct {
	store *Store
}

var _ driven.ItemStore = (*itemStore)(nil)

// SaveItem stores or updates an item.
func (s *itemStore) SaveItem(ctx context.Context, item *domain.Item) error {
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO items (id, title, content, kind, source_uri, status, error, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			kind = excluded.kind,
			source_uri = excluded.source_uri,
			status = excluded.status,
			error = excluded.error,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, item.ID, item.Title, item.Content, string(item.Kind), item.SourceURI,
		string(item.Status), item.Error, string(metadataJSON),
		item.CreatedAt.UTC(), item.UpdatedAt.UTC())

	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID.
func (s *itemStore) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, title, content, kind, source_uri, status, error, metadata, created_at, updated_at
		FROM items WHERE id = ?
	`, id)

	item, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// ListItems returns all items, newest first.
func (s *itemStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, title, content, kind, source_uri, status, error, metadata, created_at, updated_at
		FROM items ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item and cascades to its chunks and connections.
func (s *itemStore) DeleteItem(ctx context.Context, id string) error {
	mu := s.store.lockItem(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Explicit child deletes so the FTS sync triggers fire before the
	// parent row goes away.
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE item_id = ?", id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM connections WHERE source_id = ? OR target_id = ?", id, id); err != nil {
		return fmt.Errorf("deleting connections: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return tx.Commit()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var item domain.Item
	var kind, status, metadataJSON string
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&item.ID, &item.Title, &item.Content, &kind, &item.SourceURI,
		&status, &item.Error, &metadataJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning item: %w", err)
	}

	item.Kind = domain.ContentKind(kind)
	item.Status = domain.ItemStatus(status)
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}
	if createdAt.Valid {
		item.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		item.UpdatedAt = updatedAt.Time
	}
	return &item, nil
}

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// ReplaceChunks replaces all chunks for an item wholesale. It rejects
// chunks whose embedding model or dimensionality disagrees with
// embeddings already in the store.
func (s *chunkStore) ReplaceChunks(ctx context.Context, itemID string, chunks []domain.Chunk) error {
	mu := s.store.lockItem(itemID)
	mu.Lock()
	defer mu.Unlock()

	model, dims, err := s.storedEmbeddingShape(ctx, itemID)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if model != "" && (c.EmbeddingModel != model || len(c.Embedding) != dims) {
			return domain.ErrEmbeddingMismatch
		}
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE item_id = ?", itemID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, item_id, position, content, token_count, embedding, embedding_model, embedding_dims)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, itemID, c.Position, c.Content, c.TokenCount,
			float32SliceToBytes(c.Embedding), c.EmbeddingModel, len(c.Embedding))
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// storedEmbeddingShape returns the model and dimensionality of existing
// embeddings, ignoring the item being replaced. Empty model means the
// store holds no embeddings yet.
func (s *chunkStore) storedEmbeddingShape(ctx context.Context, excludeItem string) (string, int, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT embedding_model, embedding_dims FROM chunks
		WHERE embedding IS NOT NULL AND embedding_dims > 0 AND item_id != ?
		LIMIT 1
	`, excludeItem)

	var model string
	var dims int
	if err := row.Scan(&model, &dims); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("reading embedding shape: %w", err)
	}
	return model, dims, nil
}

// GetChunk retrieves a chunk by ID.
func (s *chunkStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, item_id, position, content, token_count, embedding, embedding_model
		FROM chunks WHERE id = ?
	`, id)

	chunk, err := scanChunk(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return chunk, nil
}

// GetChunks retrieves an item's chunks ordered by position.
func (s *chunkStore) GetChunks(ctx context.Context, itemID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, item_id, position, content, token_count, embedding, embedding_model
		FROM chunks WHERE item_id = ? ORDER BY position ASC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunks removes all chunks for an item.
func (s *chunkStore) DeleteChunks(ctx context.Context, itemID string) error {
	mu := s.store.lockItem(itemID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE item_id = ?", itemID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// VectorSearch returns the k nearest chunks by cosine similarity. The
// scan is brute-force over all stored embeddings, which is the right
// trade-off for a single-user local corpus.
func (s *chunkStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]driven.VectorHit, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, item_id, embedding FROM chunks
		WHERE embedding IS NOT NULL AND embedding_dims > 0
	`)
	if err != nil {
		return nil, fmt.Errorf("scanning embeddings: %w", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var chunkID, itemID string
		var blob []byte
		if err := rows.Scan(&chunkID, &itemID, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		stored := bytesToFloat32Slice(blob)
		if len(stored) == 0 {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    chunkID,
			ItemID:     itemID,
			Similarity: domain.CosineSimilarity(embedding, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity == hits[j].Similarity {
			return hits[i].ChunkID < hits[j].ChunkID
		}
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// LexicalSearch returns the k most relevant chunks by FTS5 BM25.
func (s *chunkStore) LexicalSearch(ctx context.Context, query string, k int) ([]driven.LexicalHit, error) {
	match := ftsMatchExpression(query)
	if match == "" {
		return nil, nil
	}

	// bm25() is negative with lower meaning better; negate so higher
	// is better per the port contract.
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.item_id, -bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts) ASC, c.id ASC
		LIMIT ?
	`, match, k)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var hits []driven.LexicalHit
	for rows.Next() {
		var hit driven.LexicalHit
		if err := rows.Scan(&hit.ChunkID, &hit.ItemID, &hit.Score); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ftsMatchExpression builds an FTS5 MATCH expression from free text.
// Each term is quoted so user input is never parsed as query syntax,
// and terms are OR-ed so partial matches still surface.
func ftsMatchExpression(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var blob []byte
	if err := row.Scan(&chunk.ID, &chunk.ItemID, &chunk.Position, &chunk.Content,
		&chunk.TokenCount, &blob, &chunk.EmbeddingModel); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.Embedding = bytesToFloat32Slice(blob)
	return &chunk, nil
}

// ==================== Connection Store ====================

// connectionStore implements driven.ConnectionStore.
type connectionStore struct {
	store *Store
}

var _ driven.ConnectionStore = (*connectionStore)(nil)

// ReplaceConnections replaces all connections discovered for an item.
func (s *connectionStore) ReplaceConnections(ctx context.Context, itemID string, connections []domain.Connection) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM connections WHERE source_id = ?", itemID); err != nil {
		return fmt.Errorf("deleting old connections: %w", err)
	}

	for _, conn := range connections {
		signalsJSON, err := json.Marshal(conn.Signals)
		if err != nil {
			return fmt.Errorf("marshalling signals: %w", err)
		}
		createdAt := conn.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO connections (source_id, target_id, strength, signals, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source_id, target_id) DO UPDATE SET
				strength = excluded.strength,
				signals = excluded.signals,
				created_at = excluded.created_at
		`, conn.SourceID, conn.TargetID, conn.Strength, string(signalsJSON), createdAt.UTC())
		if err != nil {
			return fmt.Errorf("inserting connection %s->%s: %w", conn.SourceID, conn.TargetID, err)
		}
	}

	return tx.Commit()
}

// ListConnections returns connections involving an item, strongest
// first. A connection stored as A->B is returned when listing either
// end.
func (s *connectionStore) ListConnections(ctx context.Context, itemID string) ([]domain.Connection, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_id, target_id, strength, signals, created_at
		FROM connections
		WHERE source_id = ? OR target_id = ?
		ORDER BY strength DESC, target_id ASC
	`, itemID, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var connections []domain.Connection
	for rows.Next() {
		var conn domain.Connection
		var signalsJSON string
		var createdAt sql.NullTime
		if err := rows.Scan(&conn.SourceID, &conn.TargetID, &conn.Strength, &signalsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		if err := json.Unmarshal([]byte(signalsJSON), &conn.Signals); err != nil {
			return nil, fmt.Errorf("unmarshalling signals: %w", err)
		}
		if createdAt.Valid {
			conn.CreatedAt = createdAt.Time
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

// ==================== Conversation Store ====================

// conversationStore implements driven.ConversationStore.
type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

// CreateConversation stores a new conversation.
func (s *conversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, conv.ID, conv.Title, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *conversationStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?
	`, id)

	var conv domain.Conversation
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	if createdAt.Valid {
		conv.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		conv.UpdatedAt = updatedAt.Time
	}
	return &conv, nil
}

// AppendMessage appends a message to a conversation.
func (s *conversationStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	citationsJSON, err := json.Marshal(msg.Citations)
	if err != nil {
		return fmt.Errorf("marshalling citations: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	row := tx.QueryRowContext(ctx, "SELECT 1 FROM conversations WHERE id = ?", msg.ConversationID)
	if err := row.Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("checking conversation: %w", err)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, citations, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		string(citationsJSON), msg.Verified, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?",
		createdAt.UTC(), msg.ConversationID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	return tx.Commit()
}

// ListMessages returns a conversation's messages in append order.
// Rowid preserves insertion order even when timestamps collide.
func (s *conversationStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, citations, verified, created_at
		FROM messages WHERE conversation_id = ? ORDER BY rowid ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role, citationsJSON string
		var createdAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&citationsJSON, &msg.Verified, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = domain.MessageRole(role)
		if citationsJSON != "" && citationsJSON != "null" {
			if err := json.Unmarshal([]byte(citationsJSON), &msg.Citations); err != nil {
				return nil, fmt.Errorf("unmarshalling citations: %w", err)
			}
		}
		if createdAt.Valid {
			msg.CreatedAt = createdAt.Time
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ==================== Checkpoint Store ====================

// checkpointStore implements driven.CheckpointStore.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

// SaveCheckpoint persists the state after a node completed.
func (s *checkpointStore) SaveCheckpoint(ctx context.Context, cp driven.Checkpoint) error {
	savedAt := cp.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (run_id, node, state, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			node = excluded.node,
			state = excluded.state,
			saved_at = excluded.saved_at
	`, cp.RunID, cp.Node, cp.State, savedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint retrieves the latest checkpoint for a run.
func (s *checkpointStore) LoadCheckpoint(ctx context.Context, runID string) (*driven.Checkpoint, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, node, state, saved_at FROM workflow_checkpoints WHERE run_id = ?
	`, runID)

	var cp driven.Checkpoint
	var savedAt sql.NullTime
	if err := row.Scan(&cp.RunID, &cp.Node, &cp.State, &savedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}
	if savedAt.Valid {
		cp.SavedAt = savedAt.Time
	}
	return &cp, nil
}

// DeleteCheckpoint removes a run's checkpoint.
func (s *checkpointStore) DeleteCheckpoint(ctx context.Context, runID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM workflow_checkpoints WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

// ==================== Embedding Encoding ====================

// float32SliceToBytes encodes a vector as little-endian float32 bytes.
// A nil or empty vector encodes as nil so the column stays NULL.
func float32SliceToBytes(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32Slice decodes little-endian float32 bytes into a vector.
func bytesToFloat32Slice(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

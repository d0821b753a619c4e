package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL lets readers proceed while an index swap is writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// A handful of connections: one writer at a time plus concurrent readers
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", types.ErrStorage, err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to apply migrations: %v", types.ErrStorage, err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Manifest operations

// upsertManifestWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertManifestWithQuerier(ctx context.Context, q querier, manifest *types.IndexManifest) error {
	if manifest.ID == "" {
		manifest.ID = uuid.NewString()
	}
	query := `
		INSERT INTO manifests (id, library_key, docs_url, source_kind, version_marker,
		                       generation, chunk_count, embedding_dim, indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(library_key) DO UPDATE SET
			docs_url = excluded.docs_url,
			source_kind = excluded.source_kind,
			version_marker = excluded.version_marker,
			generation = excluded.generation,
			chunk_count = excluded.chunk_count,
			embedding_dim = excluded.embedding_dim,
			indexed_at = excluded.indexed_at,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if manifest.IndexedAt.IsZero() {
		manifest.IndexedAt = now
	}
	_, err := q.ExecContext(ctx, query,
		manifest.ID, manifest.LibraryKey, manifest.DocsURL, string(manifest.SourceKind),
		manifest.VersionMarker, manifest.Generation, manifest.ChunkCount,
		manifest.EmbeddingDim, manifest.IndexedAt, now, now)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert manifest: %v", types.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertManifest(ctx context.Context, manifest *types.IndexManifest) error {
	return s.upsertManifestWithQuerier(ctx, s.querier(), manifest)
}

// getManifestWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getManifestWithQuerier(ctx context.Context, q querier, libraryKey string) (*types.IndexManifest, error) {
	query := `
		SELECT id, library_key, docs_url, source_kind, version_marker,
		       generation, chunk_count, embedding_dim, indexed_at
		FROM manifests
		WHERE library_key = ?
	`
	var manifest types.IndexManifest
	var sourceKind string
	var indexedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, libraryKey).Scan(
		&manifest.ID, &manifest.LibraryKey, &manifest.DocsURL, &sourceKind,
		&manifest.VersionMarker, &manifest.Generation, &manifest.ChunkCount,
		&manifest.EmbeddingDim, &indexedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	manifest.SourceKind = types.SourceKind(sourceKind)
	if indexedAt.Valid {
		manifest.IndexedAt = indexedAt.Time
	}
	return &manifest, nil
}

func (s *SQLiteStorage) GetManifest(ctx context.Context, libraryKey string) (*types.IndexManifest, error) {
	return s.getManifestWithQuerier(ctx, s.querier(), libraryKey)
}

// deleteManifestWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteManifestWithQuerier(ctx context.Context, q querier, libraryKey string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM manifests WHERE library_key = ?`, libraryKey)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteManifest(ctx context.Context, libraryKey string) error {
	return s.deleteManifestWithQuerier(ctx, s.querier(), libraryKey)
}

// listManifestsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listManifestsWithQuerier(ctx context.Context, q querier) ([]*types.IndexManifest, error) {
	query := `
		SELECT id, library_key, docs_url, source_kind, version_marker,
		       generation, chunk_count, embedding_dim, indexed_at
		FROM manifests
		ORDER BY library_key
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	manifests := make([]*types.IndexManifest, 0)
	for rows.Next() {
		var manifest types.IndexManifest
		var sourceKind string
		var indexedAt sql.NullTime
		err := rows.Scan(
			&manifest.ID, &manifest.LibraryKey, &manifest.DocsURL, &sourceKind,
			&manifest.VersionMarker, &manifest.Generation, &manifest.ChunkCount,
			&manifest.EmbeddingDim, &indexedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
		manifest.SourceKind = types.SourceKind(sourceKind)
		if indexedAt.Valid {
			manifest.IndexedAt = indexedAt.Time
		}
		manifests = append(manifests, &manifest)
	}
	return manifests, rows.Err()
}

func (s *SQLiteStorage) ListManifests(ctx context.Context) ([]*types.IndexManifest, error) {
	return s.listManifestsWithQuerier(ctx, s.querier())
}

// Chunk operations

// insertChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *types.DocumentChunk) error {
	if err := chunk.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}

	var embedding []byte
	if len(chunk.Embedding) > 0 {
		embedding = serializeVector(chunk.Embedding)
	}

	query := `
		INSERT INTO chunks (
			chunk_id, library_key, generation, title, heading_path, content,
			content_hash, token_count, source_url, chunk_index, embedding,
			quality_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		chunk.ID, chunk.LibraryKey, chunk.Generation, chunk.Title, chunk.HeadingPath,
		chunk.Content, chunk.ContentHash[:], chunk.TokenCount, chunk.SourceURL,
		chunk.ChunkIndex, embedding, chunk.QualityScore, time.Now())
	if err != nil {
		return fmt.Errorf("%w: failed to insert chunk: %v", types.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *types.DocumentChunk) error {
	return s.insertChunkWithQuerier(ctx, s.querier(), chunk)
}

const chunkColumns = `chunk_id, library_key, generation, title, heading_path, content,
	       content_hash, token_count, source_url, chunk_index, embedding, quality_score`

// scanChunk reads one chunk row in chunkColumns order
func scanChunk(scan func(dest ...interface{}) error) (*types.DocumentChunk, error) {
	var chunk types.DocumentChunk
	var hash, embedding []byte
	err := scan(
		&chunk.ID, &chunk.LibraryKey, &chunk.Generation, &chunk.Title,
		&chunk.HeadingPath, &chunk.Content, &hash, &chunk.TokenCount,
		&chunk.SourceURL, &chunk.ChunkIndex, &embedding, &chunk.QualityScore,
	)
	if err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hash)
	if len(embedding) > 0 {
		chunk.Embedding = deserializeVector(embedding)
	}
	return &chunk, nil
}

// getChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID string) (*types.DocumentChunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE chunk_id = ?`
	row := q.QueryRowContext(ctx, query, chunkID)
	chunk, err := scanChunk(row.Scan)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return chunk, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*types.DocumentChunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// getChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getChunksWithQuerier(ctx context.Context, q querier, chunkIDs []string) ([]*types.DocumentChunk, error) {
	if len(chunkIDs) == 0 {
		return []*types.DocumentChunk{}, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE chunk_id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*types.DocumentChunk, len(chunkIDs))
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	// Preserve caller order; skip IDs deleted between search and hydration
	chunks := make([]*types.DocumentChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := byID[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (s *SQLiteStorage) GetChunks(ctx context.Context, chunkIDs []string) ([]*types.DocumentChunk, error) {
	return s.getChunksWithQuerier(ctx, s.querier(), chunkIDs)
}

// countChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) countChunksWithQuerier(ctx context.Context, q querier, libraryKey string, generation int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE library_key = ? AND generation = ?`,
		libraryKey, generation).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return count, nil
}

func (s *SQLiteStorage) CountChunks(ctx context.Context, libraryKey string, generation int64) (int, error) {
	return s.countChunksWithQuerier(ctx, s.querier(), libraryKey, generation)
}

// deleteChunksBeforeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteChunksBeforeWithQuerier(ctx context.Context, q querier, libraryKey string, generation int64) (int, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM chunks WHERE library_key = ? AND generation < ?`,
		libraryKey, generation)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return int(rowsAffected), nil
}

func (s *SQLiteStorage) DeleteChunksBefore(ctx context.Context, libraryKey string, generation int64) (int, error) {
	return s.deleteChunksBeforeWithQuerier(ctx, s.querier(), libraryKey, generation)
}

// deleteChunksByLibraryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteChunksByLibraryWithQuerier(ctx context.Context, q querier, libraryKey string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE library_key = ?`, libraryKey)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteChunksByLibrary(ctx context.Context, libraryKey string) error {
	return s.deleteChunksByLibraryWithQuerier(ctx, s.querier(), libraryKey)
}

// ReplaceIndex atomically installs a new generation for the manifest's key
func (s *SQLiteStorage) ReplaceIndex(ctx context.Context, manifest *types.IndexManifest, chunks []*types.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, chunk := range chunks {
		chunk.LibraryKey = manifest.LibraryKey
		chunk.Generation = manifest.Generation
		if err := s.insertChunkWithQuerier(ctx, tx, chunk); err != nil {
			return err
		}
	}

	manifest.ChunkCount = len(chunks)
	if err := s.upsertManifestWithQuerier(ctx, tx, manifest); err != nil {
		return err
	}

	if _, err := s.deleteChunksBeforeWithQuerier(ctx, tx, manifest.LibraryKey, manifest.Generation); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

// Invalidate removes the manifest and all chunks for a library key
func (s *SQLiteStorage) Invalidate(ctx context.Context, libraryKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteChunksByLibraryWithQuerier(ctx, tx, libraryKey); err != nil {
		return err
	}
	if err := s.deleteManifestWithQuerier(ctx, tx, libraryKey); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

// Search operations

func (s *SQLiteStorage) SearchText(ctx context.Context, libraryKey string, query string, limit int) ([]TextResult, error) {
	return searchText(ctx, s.db, libraryKey, query, limit)
}

func (s *SQLiteStorage) SearchVector(ctx context.Context, libraryKey string, vector []float32, limit int) ([]VectorResult, error) {
	return searchVector(ctx, s.db, libraryKey, vector, limit)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*IndexStatus, error) {
	status := &IndexStatus{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM manifests").Scan(&status.LibraryCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&status.ChunkCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL").Scan(&status.EmbeddedCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	var oldest sql.NullTime
	err = s.db.QueryRowContext(ctx, "SELECT MIN(indexed_at) FROM manifests").Scan(&oldest)
	if err == nil && oldest.Valid {
		status.OldestIndexedAt = oldest.Time
	}

	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddedCount > 0,
		FTSIndexesBuilt:     true, // FTS indexes are created with migrations
	}

	return status, nil
}

// Transaction implementations

func (t *sqliteTx) GetManifest(ctx context.Context, libraryKey string) (*types.IndexManifest, error) {
	return t.storage.getManifestWithQuerier(ctx, t.querier(), libraryKey)
}

func (t *sqliteTx) UpsertManifest(ctx context.Context, manifest *types.IndexManifest) error {
	return t.storage.upsertManifestWithQuerier(ctx, t.querier(), manifest)
}

func (t *sqliteTx) DeleteManifest(ctx context.Context, libraryKey string) error {
	return t.storage.deleteManifestWithQuerier(ctx, t.querier(), libraryKey)
}

func (t *sqliteTx) ListManifests(ctx context.Context) ([]*types.IndexManifest, error) {
	return t.storage.listManifestsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertChunk(ctx context.Context, chunk *types.DocumentChunk) error {
	return t.storage.insertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID string) (*types.DocumentChunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) GetChunks(ctx context.Context, chunkIDs []string) ([]*types.DocumentChunk, error) {
	return t.storage.getChunksWithQuerier(ctx, t.querier(), chunkIDs)
}

func (t *sqliteTx) CountChunks(ctx context.Context, libraryKey string, generation int64) (int, error) {
	return t.storage.countChunksWithQuerier(ctx, t.querier(), libraryKey, generation)
}

func (t *sqliteTx) DeleteChunksBefore(ctx context.Context, libraryKey string, generation int64) (int, error) {
	return t.storage.deleteChunksBeforeWithQuerier(ctx, t.querier(), libraryKey, generation)
}

func (t *sqliteTx) DeleteChunksByLibrary(ctx context.Context, libraryKey string) error {
	return t.storage.deleteChunksByLibraryWithQuerier(ctx, t.querier(), libraryKey)
}

func (t *sqliteTx) ReplaceIndex(ctx context.Context, manifest *types.IndexManifest, chunks []*types.DocumentChunk) error {
	return errors.New("ReplaceIndex manages its own transaction")
}

func (t *sqliteTx) Invalidate(ctx context.Context, libraryKey string) error {
	if err := t.storage.deleteChunksByLibraryWithQuerier(ctx, t.querier(), libraryKey); err != nil {
		return err
	}
	return t.storage.deleteManifestWithQuerier(ctx, t.querier(), libraryKey)
}

func (t *sqliteTx) SearchText(ctx context.Context, libraryKey string, query string, limit int) ([]TextResult, error) {
	return t.storage.SearchText(ctx, libraryKey, query, limit)
}

func (t *sqliteTx) SearchVector(ctx context.Context, libraryKey string, vector []float32, limit int) ([]VectorResult, error) {
	return t.storage.SearchVector(ctx, libraryKey, vector, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*IndexStatus, error) {
	return t.storage.GetStatus(ctx)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(libraryKey string, generation int64, content string) *types.DocumentChunk {
	chunk := &types.DocumentChunk{
		LibraryKey: libraryKey,
		Generation: generation,
		Title:      "Guide",
		Content:    content,
		SourceURL:  "https://docs.example.com/guide",
	}
	chunk.ComputeContentHash()
	chunk.ComputeTokenCount()
	return chunk
}

func TestManifestRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	manifest := &types.IndexManifest{
		LibraryKey:    "react",
		DocsURL:       "https://react.dev",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:19.0.0",
		Generation:    1,
		ChunkCount:    10,
		EmbeddingDim:  768,
	}
	if err := store.UpsertManifest(ctx, manifest); err != nil {
		t.Fatalf("UpsertManifest() error = %v", err)
	}
	if manifest.ID == "" {
		t.Error("UpsertManifest() should assign an ID")
	}

	got, err := store.GetManifest(ctx, "react")
	if err != nil {
		t.Fatalf("GetManifest() error = %v", err)
	}
	if got.DocsURL != manifest.DocsURL || got.VersionMarker != manifest.VersionMarker {
		t.Errorf("GetManifest() = %+v, want %+v", got, manifest)
	}
	if got.SourceKind != types.SourceCuratedManifest {
		t.Errorf("SourceKind = %q, want %q", got.SourceKind, types.SourceCuratedManifest)
	}

	// Upsert replaces in place, no duplicate rows
	manifest.VersionMarker = "r1:v:19.1.0"
	manifest.Generation = 2
	if err := store.UpsertManifest(ctx, manifest); err != nil {
		t.Fatalf("UpsertManifest() update error = %v", err)
	}
	manifests, err := store.ListManifests(ctx)
	if err != nil {
		t.Fatalf("ListManifests() error = %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("ListManifests() returned %d manifests, want 1", len(manifests))
	}
	if manifests[0].Generation != 2 {
		t.Errorf("Generation = %d, want 2", manifests[0].Generation)
	}
}

func TestGetManifestNotFound(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.GetManifest(context.Background(), "missing")
	if err != types.ErrNotFound {
		t.Errorf("GetManifest() error = %v, want ErrNotFound", err)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	chunk := testChunk("react", 1, "useState lets a component remember values between renders.")
	chunk.HeadingPath = "Hooks > useState"
	chunk.Embedding = []float32{0.1, 0.2, 0.3}
	chunk.QualityScore = 0.5

	if err := store.InsertChunk(ctx, chunk); err != nil {
		t.Fatalf("InsertChunk() error = %v", err)
	}
	if chunk.ID == "" {
		t.Fatal("InsertChunk() should assign an ID")
	}

	got, err := store.GetChunk(ctx, chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk() error = %v", err)
	}
	if got.Content != chunk.Content || got.HeadingPath != chunk.HeadingPath {
		t.Errorf("GetChunk() content mismatch")
	}
	if got.ContentHash != chunk.ContentHash {
		t.Error("GetChunk() content hash mismatch")
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.2 {
		t.Errorf("GetChunk() embedding = %v, want %v", got.Embedding, chunk.Embedding)
	}
	if got.QualityScore != 0.5 {
		t.Errorf("QualityScore = %v, want 0.5", got.QualityScore)
	}
}

func TestGetChunksPreservesOrder(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := testChunk("react", 1, "first chunk about rendering")
	second := testChunk("react", 1, "second chunk about effects")
	for _, chunk := range []*types.DocumentChunk{first, second} {
		if err := store.InsertChunk(ctx, chunk); err != nil {
			t.Fatalf("InsertChunk() error = %v", err)
		}
	}

	got, err := store.GetChunks(ctx, []string{second.ID, first.ID, "missing"})
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetChunks() returned %d chunks, want 2", len(got))
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Error("GetChunks() did not preserve requested order")
	}
}

func TestReplaceIndexSwapsGenerations(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	oldManifest := &types.IndexManifest{
		LibraryKey:    "vue",
		DocsURL:       "https://vuejs.org",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:3.4.0",
		Generation:    1,
	}
	oldChunks := []*types.DocumentChunk{
		testChunk("vue", 1, "reactivity fundamentals with ref and reactive"),
		testChunk("vue", 1, "computed properties track their dependencies"),
	}
	if err := store.ReplaceIndex(ctx, oldManifest, oldChunks); err != nil {
		t.Fatalf("ReplaceIndex() error = %v", err)
	}

	newManifest := &types.IndexManifest{
		ID:            oldManifest.ID,
		LibraryKey:    "vue",
		DocsURL:       "https://vuejs.org",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:3.5.0",
		Generation:    2,
	}
	newChunks := []*types.DocumentChunk{
		testChunk("vue", 2, "reactivity fundamentals rewritten for vapor mode"),
	}
	if err := store.ReplaceIndex(ctx, newManifest, newChunks); err != nil {
		t.Fatalf("ReplaceIndex() swap error = %v", err)
	}

	manifest, err := store.GetManifest(ctx, "vue")
	if err != nil {
		t.Fatalf("GetManifest() error = %v", err)
	}
	if manifest.Generation != 2 {
		t.Errorf("Generation = %d, want 2", manifest.Generation)
	}
	if manifest.ChunkCount != 1 {
		t.Errorf("ChunkCount = %d, want 1", manifest.ChunkCount)
	}

	oldCount, err := store.CountChunks(ctx, "vue", 1)
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	if oldCount != 0 {
		t.Errorf("old generation has %d chunks after swap, want 0", oldCount)
	}

	// Search must only see the installed generation
	results, err := store.SearchText(ctx, "vue", "reactivity fundamentals", 10)
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("SearchText() returned %d results, want 1", len(results))
	}
	if results[0].ChunkID != newChunks[0].ID {
		t.Error("SearchText() returned a chunk from the replaced generation")
	}
}

func TestConcurrentReadsDuringGenerationSwap(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	install := func(prev *types.IndexManifest, generation int64) *types.IndexManifest {
		manifest := &types.IndexManifest{
			LibraryKey:    "fastapi",
			DocsURL:       "https://fastapi.tiangolo.com",
			SourceKind:    types.SourceCuratedManifest,
			VersionMarker: fmt.Sprintf("r1:v:0.%d.0", generation),
			Generation:    generation,
		}
		if prev != nil {
			manifest.ID = prev.ID
		}
		chunks := make([]*types.DocumentChunk, 0, 3)
		for i := 0; i < 3; i++ {
			chunks = append(chunks, testChunk("fastapi", generation,
				fmt.Sprintf("dependency injection chapter %d revision %d", i, generation)))
		}
		if err := store.ReplaceIndex(ctx, manifest, chunks); err != nil {
			t.Fatalf("ReplaceIndex() generation %d error = %v", generation, err)
		}
		return manifest
	}

	manifest := install(nil, 1)

	done := make(chan struct{})
	errCh := make(chan error, 4)
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				results, err := store.SearchText(ctx, "fastapi", "dependency injection", 10)
				if err != nil {
					errCh <- fmt.Errorf("SearchText: %w", err)
					return
				}
				if len(results) == 0 {
					continue
				}
				ids := make([]string, len(results))
				for i, res := range results {
					ids[i] = res.ChunkID
				}
				chunks, err := store.GetChunks(ctx, ids)
				if err != nil {
					errCh <- fmt.Errorf("GetChunks: %w", err)
					return
				}
				// Every read must resolve to a single generation; a mix
				// means a reader observed a half-swapped index
				var generation int64 = -1
				for _, chunk := range chunks {
					if generation == -1 {
						generation = chunk.Generation
					}
					if chunk.Generation != generation {
						errCh <- fmt.Errorf("mixed generations %d and %d in one read",
							generation, chunk.Generation)
						return
					}
				}
			}
		}()
	}

	for generation := int64(2); generation <= 8; generation++ {
		manifest = install(manifest, generation)
	}

	close(done)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent read during swap: %v", err)
	}
}

func TestInvalidateRemovesEverything(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	manifest := &types.IndexManifest{
		LibraryKey:    "django",
		DocsURL:       "https://docs.djangoproject.com",
		SourceKind:    types.SourcePackageRegistry,
		VersionMarker: "r1:v:5.1",
		Generation:    1,
	}
	chunks := []*types.DocumentChunk{testChunk("django", 1, "the django ORM maps models to tables")}
	if err := store.ReplaceIndex(ctx, manifest, chunks); err != nil {
		t.Fatalf("ReplaceIndex() error = %v", err)
	}

	if err := store.Invalidate(ctx, "django"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	if _, err := store.GetManifest(ctx, "django"); err != types.ErrNotFound {
		t.Errorf("GetManifest() after invalidate error = %v, want ErrNotFound", err)
	}
	count, err := store.CountChunks(ctx, "django", 1)
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountChunks() = %d after invalidate, want 0", count)
	}
}

func TestSearchTextPhraseTierWins(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	manifest := &types.IndexManifest{
		LibraryKey:    "react",
		DocsURL:       "https://react.dev",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:19.0.0",
		Generation:    1,
	}
	phrase := testChunk("react", 1, "the useState hook returns a stateful value")
	scattered := testChunk("react", 1, "a value is stateful when useState manages hook state elsewhere returns")
	if err := store.ReplaceIndex(ctx, manifest, []*types.DocumentChunk{phrase, scattered}); err != nil {
		t.Fatalf("ReplaceIndex() error = %v", err)
	}

	results, err := store.SearchText(ctx, "react", "useState hook returns", 10)
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("phrase tier should match exactly one chunk, got %d", len(results))
	}
	if results[0].ChunkID != phrase.ID {
		t.Error("phrase tier returned the wrong chunk")
	}
}

func TestSearchTextFallsBackToTokenTiers(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	manifest := &types.IndexManifest{
		LibraryKey:    "react",
		DocsURL:       "https://react.dev",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:19.0.0",
		Generation:    1,
	}
	chunk := testChunk("react", 1, "effects run after the browser paints the screen")
	if err := store.ReplaceIndex(ctx, manifest, []*types.DocumentChunk{chunk}); err != nil {
		t.Fatalf("ReplaceIndex() error = %v", err)
	}

	// No chunk contains this phrase verbatim, the AND tier still matches
	results, err := store.SearchText(ctx, "react", "browser effects", 10)
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("AND tier should match one chunk, got %d", len(results))
	}
}

func TestSearchTextScoresBestMatchHighest(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	manifest := &types.IndexManifest{
		LibraryKey:    "express",
		DocsURL:       "https://expressjs.com",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:5.0.0",
		Generation:    1,
	}
	strong := testChunk("express", 1, "middleware chaining: middleware functions chain, each middleware calls next to run the following middleware")
	weak := testChunk("express", 1, "routers mount handlers on paths; a handler may also act as middleware when it calls next, though chaining is covered elsewhere")
	if err := store.ReplaceIndex(ctx, manifest, []*types.DocumentChunk{strong, weak}); err != nil {
		t.Fatalf("ReplaceIndex() error = %v", err)
	}

	results, err := store.SearchText(ctx, "express", "middleware chaining next", 10)
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SearchText() returned %d results, want 2", len(results))
	}
	if results[0].ChunkID != strong.ID {
		t.Fatal("SearchText() did not rank the dense match first")
	}
	// Converted scores must run in the same direction as the ranking, or
	// downstream fusion reorders candidates backwards
	if results[0].BM25Score <= results[1].BM25Score {
		t.Errorf("score direction inverted: best match %v <= worse match %v",
			results[0].BM25Score, results[1].BM25Score)
	}
}

func TestSearchVectorOrdering(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	manifest := &types.IndexManifest{
		LibraryKey:    "numpy",
		DocsURL:       "https://numpy.org/doc",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:2.1.0",
		Generation:    1,
		EmbeddingDim:  3,
	}
	near := testChunk("numpy", 1, "broadcasting rules for arrays")
	near.Embedding = []float32{1, 0, 0}
	far := testChunk("numpy", 1, "saving arrays to disk")
	far.Embedding = []float32{0, 1, 0}
	unembedded := testChunk("numpy", 1, "chunk indexed without a backend")

	if err := store.ReplaceIndex(ctx, manifest, []*types.DocumentChunk{near, far, unembedded}); err != nil {
		t.Fatalf("ReplaceIndex() error = %v", err)
	}

	results, err := store.SearchVector(ctx, "numpy", []float32{0.9, 0.1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchVector() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SearchVector() returned %d results, want 2 (unembedded chunk skipped)", len(results))
	}
	if results[0].ChunkID != near.ID {
		t.Error("SearchVector() did not rank the closest vector first")
	}
	if results[0].SimilarityScore <= results[1].SimilarityScore {
		t.Error("SearchVector() scores not descending")
	}
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	manifest := &types.IndexManifest{
		LibraryKey:    "tokio",
		DocsURL:       "https://tokio.rs",
		SourceKind:    types.SourceCuratedManifest,
		VersionMarker: "r1:v:1.40",
		Generation:    1,
	}
	if err := tx.UpsertManifest(ctx, manifest); err != nil {
		t.Fatalf("UpsertManifest() in tx error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := store.GetManifest(ctx, "tokio"); err != types.ErrNotFound {
		t.Errorf("GetManifest() after rollback error = %v, want ErrNotFound", err)
	}
}

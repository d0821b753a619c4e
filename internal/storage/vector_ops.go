package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

// currentGenerationFilter scopes a search to the library's installed
// generation so readers never see a half-swapped index.
const currentGenerationFilter = `
	c.library_key = ?
	AND c.generation = (SELECT generation FROM manifests WHERE library_key = ?)
`

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, libraryKey string, queryVector []float32, limit int) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}

	query := `
		SELECT c.chunk_id, c.embedding
		FROM chunks c
		WHERE ` + currentGenerationFilter + `
		AND c.embedding IS NOT NULL
	`
	rows, err := db.QueryContext(ctx, query, libraryKey, libraryKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query embeddings: %v", types.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5. Match expressions
// are tried in tiers: the exact phrase first, then all tokens ANDed, then
// any token. The first tier with results wins, so verbatim phrases always
// outrank loose token matches.
func searchText(ctx context.Context, db *sql.DB, libraryKey string, query string, limit int) ([]TextResult, error) {
	if limit <= 0 {
		return []TextResult{}, nil
	}

	expressions := buildFTSExpressions(query)
	if len(expressions) == 0 {
		return []TextResult{}, nil
	}

	// Title and heading matches weigh more than body matches
	sqlQuery := `
		SELECT c.chunk_id, bm25(chunks_fts, 3.0, 2.0, 1.0) as score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.rowid
		WHERE chunks_fts MATCH ?
		AND ` + currentGenerationFilter + `
		ORDER BY score LIMIT ?
	`

	for _, expression := range expressions {
		rows, err := db.QueryContext(ctx, sqlQuery, expression, libraryKey, libraryKey, limit)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to execute FTS search: %v", types.ErrStorage, err)
		}
		results, err := collectTextResults(rows)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return []TextResult{}, nil
}

// buildFTSExpressions produces the tiered FTS5 match expressions for a raw
// query: phrase, AND of tokens, OR of tokens. Single-token queries collapse
// to one tier.
func buildFTSExpressions(query string) []string {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return nil
	}

	quoted := make([]string, len(tokens))
	for i, token := range tokens {
		quoted[i] = `"` + token + `"`
	}

	if len(tokens) == 1 {
		return []string{quoted[0]}
	}
	return []string{
		`"` + strings.Join(tokens, " ") + `"`,
		strings.Join(quoted, " AND "),
		strings.Join(quoted, " OR "),
	}
}

// tokenizeQuery splits a query into lowercase alphanumeric tokens, which
// also neutralizes FTS5 operators and quoting in user input.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// collectTextResults processes text search results and normalizes scores
func collectTextResults(rows *sql.Rows) ([]TextResult, error) {
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0)
	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.ChunkID, &result.BM25Score); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
		}

		// FTS5 bm25() is more negative for better matches. Negate so higher
		// is better; fusion min-max normalizes, so only direction matters.
		result.BM25Score = -result.BM25Score
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return results, nil
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 1000)

	for rows.Next() {
		var chunkID string
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		candidates = append(candidates, candidate{
			chunkID: chunkID,
			score:   cosineSimilarity(queryVector, vector),
		})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunkID string
	score   float64
}

// sortCandidates orders by score descending, chunk ID ascending on ties
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

// BuildFTSExpressions is an exported helper for testing
func BuildFTSExpressions(query string) []string {
	return buildFTSExpressions(query)
}

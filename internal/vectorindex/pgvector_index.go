package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/embedder"
)

// PgvectorIndex is a Postgres + pgvector backed Index, for deployments that
// keep chunk embeddings in the database instead of process memory. It
// implements the same ordering contract as MemoryIndex: descending cosine
// similarity (via pgvector's <=> operator), ties by chunk_index ascending.
type PgvectorIndex struct {
	pool     *pgxpool.Pool
	embedder embedder.Client
}

// NewPgvectorIndex wires a pgx pool already migrated with a
// chunks(collection_id, doc_id, doc_title, chunk_index, source_path,
// content, embedding vector(1024), metadata jsonb) table.
func NewPgvectorIndex(pool *pgxpool.Pool, embedder embedder.Client) *PgvectorIndex {
	return &PgvectorIndex{pool: pool, embedder: embedder}
}

func (p *PgvectorIndex) Search(ctx context.Context, collectionID, queryText string, k int, filters domain.SmartFilters) ([]ScoredChunk, error) {
	queryEmbedding, err := p.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	vec := pgv.NewVector(queryEmbedding)

	effective := effectiveFilters(filters)
	where, args := buildWhereClause(effective, collectionID)

	query := fmt.Sprintf(`
		SELECT doc_id, doc_title, chunk_index, source_path, content,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		%s
		ORDER BY score DESC, chunk_index ASC
		LIMIT %d`, where, limitOrDefault(k))

	args = append([]interface{}{vec}, args...)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var c domain.Chunk
		var score float64
		if err := rows.Scan(&c.DocID, &c.DocTitle, &c.ChunkIndex, &c.SourcePath, &c.Content, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		c.CollectionID = collectionID
		out = append(out, ScoredChunk{Chunk: c, Score: score})
	}
	return out, rows.Err()
}

func buildWhereClause(filters domain.SmartFilters, collectionID string) (string, []interface{}) {
	clause := "WHERE collection_id = $2"
	args := []interface{}{collectionID}
	argN := 3

	if titles, ok := filters["exact_title"]; ok {
		clause += fmt.Sprintf(" AND doc_title = ANY($%d)", argN)
		args = append(args, titles)
		argN++
	}
	if docIDs, ok := filters["doc_id"]; ok {
		clause += fmt.Sprintf(" AND doc_id = ANY($%d)", argN)
		args = append(args, docIDs)
		argN++
	}
	if agencies, ok := filters["agency"]; ok {
		clause += fmt.Sprintf(" AND (metadata->>'issuing_agency' = ANY($%d) OR metadata->>'executing_agency' = ANY($%d))", argN, argN)
		args = append(args, agencies)
		argN++
	}
	return clause, args
}

func limitOrDefault(k int) int {
	if k <= 0 {
		return 20
	}
	return k
}

var _ Index = (*PgvectorIndex)(nil)

// Package pgstore is the Postgres/pgvector vector store, selected with
// store.type "postgres". It implements the same surface as chromemdb.
package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docqa/internal/config"
	"docqa/internal/models"
	"docqa/internal/retrieval"
)

// broadProbe stands in for an empty query so similarity ordering still
// applies when the pipeline asks for a broad match.
const broadProbe = "document content information"

// Vector marshals as a pgvector literal like [0.1,0.2].
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String(), nil
}

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID             int64  `bun:"id,pk,autoincrement"`
	Content        string `bun:"content,notnull"`
	Embedding      Vector `bun:"embedding,notnull,type:vector(768)"`
	SourceFilename string `bun:"source_filename,notnull"`
	PageNumber     int    `bun:"page_number,notnull"`
	ChunkID        int    `bun:"chunk_id,notnull"`
}

func ConnectDB(cfg *config.DatabaseConfig) *sql.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Store pairs the documents table with the embedder used for query vectors.
// It implements retrieval.Index.
type Store struct {
	db       *bun.DB
	embedder *embeddings.EmbedderImpl
}

func NewStore(db *bun.DB, embedder *embeddings.EmbedderImpl) *Store {
	return &Store{db: db, embedder: embedder}
}

// AddChunks inserts embedded chunks in one batch.
func (s *Store) AddChunks(ctx context.Context, chunkEmbeddings []models.ChunkEmbedding) error {
	if len(chunkEmbeddings) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(chunkEmbeddings))
	for _, ce := range chunkEmbeddings {
		docs = append(docs, Document{
			Content:        ce.Content,
			Embedding:      Vector(ce.Embedding),
			SourceFilename: ce.SourceFilename,
			PageNumber:     ce.PageNumber,
			ChunkID:        ce.ChunkID,
		})
	}
	if _, err := s.db.NewInsert().Model(&docs).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	return nil
}

// Search implements retrieval.Index by embedding the query and ordering by
// vector distance. An empty query matches broadly.
func (s *Store) Search(ctx context.Context, query string, k int) ([]retrieval.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(query) == "" {
		query = broadProbe
	}

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var docs []Document
	err = s.db.NewSelect().
		Model(&docs).
		Column("content", "source_filename", "page_number").
		OrderExpr("embedding <-> ?", Vector(queryEmbedding)).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	chunks := make([]retrieval.Chunk, 0, len(docs))
	for _, d := range docs {
		chunks = append(chunks, retrieval.Chunk{
			Content: d.Content,
			Source:  d.SourceFilename,
			Page:    d.PageNumber,
		})
	}
	return chunks, nil
}

// DeleteBySource removes every chunk indexed from the given filename.
func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	_, err := s.db.NewDelete().
		Model((*Document)(nil)).
		Where("source_filename = ?", source).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete documents of %s: %w", source, err)
	}
	return nil
}

// Count reports how many chunks the table holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Count(ctx)
}

// Reset drops and recreates the documents table.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop documents: %w", err)
	}
	return InitDB(ctx, s.db)
}

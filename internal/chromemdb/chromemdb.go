// Package chromemdb is the default vector store: an embedded chromem-go
// database holding one collection of document chunks.
package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/config"
	"docqa/internal/helper"
	"docqa/internal/models"
	"docqa/internal/retrieval"
)

const (
	compress = false
	// broadProbe stands in for an empty query: chromem rejects empty query
	// text, but the retrieval pipeline expects "" to match broadly.
	broadProbe = "document content information"
)

// Store encapsulates the chromem-go database operations. It implements
// retrieval.Index.
type Store struct {
	db            *chromem.DB
	collection    *chromem.Collection
	embedFunc     chromem.EmbeddingFunc
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// NewStore opens (or creates) the configured collection. In-memory mode
// skips persistence entirely.
func NewStore(cfg *config.StoreConfig, encryptionKey string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}

	return &Store{
		db:            db,
		collection:    collection,
		embedFunc:     embedFunc,
		dbPath:        cfg.Path,
		compress:      compress,
		encryptionKey: encryptionKey,
		filePath:      cfg.Path + "/" + cfg.Collection + ".chromem",
	}, nil
}

// EmbeddingFuncFrom adapts a langchaingo embedder to chromem's callback.
func EmbeddingFuncFrom(embedder *embeddings.EmbedderImpl) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}

// AddChunks indexes embedded chunks with their attribution metadata.
func (s *Store) AddChunks(ctx context.Context, chunkEmbeddings []models.ChunkEmbedding) error {
	if len(chunkEmbeddings) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunkEmbeddings))
	for _, ce := range chunkEmbeddings {
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   ce.Content,
			Embedding: ce.Embedding,
			Metadata: map[string]string{
				models.MetaSource:     ce.SourceFilename,
				models.MetaPageNumber: strconv.Itoa(ce.PageNumber),
				models.MetaChunkID:    strconv.Itoa(ce.ChunkID),
			},
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	return nil
}

// Search implements retrieval.Index. An empty collection matches nothing,
// an empty query matches broadly, and k is clamped to the collection size.
func (s *Store) Search(ctx context.Context, query string, k int) ([]retrieval.Chunk, error) {
	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	if strings.TrimSpace(query) == "" {
		query = broadProbe
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	chunks := make([]retrieval.Chunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, toChunk(res))
	}
	return chunks, nil
}

func toChunk(res chromem.Result) retrieval.Chunk {
	c := retrieval.Chunk{
		Content: res.Content,
		Source:  res.Metadata[models.MetaSource],
	}
	if page, err := strconv.Atoi(res.Metadata[models.MetaPageNumber]); err == nil {
		c.Page = page
	}
	return c
}

// DeleteBySource removes every chunk indexed from the given filename.
func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	err := s.collection.Delete(ctx, map[string]string{models.MetaSource: source}, nil)
	if err != nil {
		return fmt.Errorf("failed to delete documents of %s: %v", source, err)
	}
	return nil
}

// Count reports how many chunks the collection holds.
func (s *Store) Count(_ context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Reset drops and recreates the collection.
func (s *Store) Reset(_ context.Context) error {
	name := s.collection.Name
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	collection, err := s.db.GetOrCreateCollection(name, nil, s.embedFunc)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %v", err)
	}
	s.collection = collection
	return nil
}

// Export writes the collection to an encrypted snapshot file.
func (s *Store) Export(_ context.Context) error {
	if s.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is required")
	}

	log.Debug().Str("collection", s.collection.Name).Str("file", s.filePath).Msg("Exporting collection")
	if err := s.db.ExportToFile(s.filePath, s.compress, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import restores the collection from an encrypted snapshot file.
func (s *Store) Import(_ context.Context) error {
	if s.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if err := s.db.ImportFromFile(s.filePath, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	return nil
}

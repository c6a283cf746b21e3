// Package ingest manages the document library: saving uploads, parsing,
// OCR recovery, embedding, and index bookkeeping.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/ocr"
	"docqa/internal/parser"
)

// minDocumentText rejects uploads whose parsed text is too short to index.
const minDocumentText = 50

var (
	ErrNoFilename       = errors.New("no file selected")
	ErrNotFound         = errors.New("file not found")
	ErrInsufficientText = errors.New("failed to extract sufficient text")
)

// UnsupportedTypeError reports a rejected upload extension.
type UnsupportedTypeError struct {
	Filename string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("invalid file type: %s", e.Filename)
}

// IndexCleanupError reports that a document's file was deleted but its
// index entries were not.
type IndexCleanupError struct {
	Filename string
	Err      error
}

func (e *IndexCleanupError) Error() string {
	return fmt.Sprintf("deleted %s but failed to update index: %v", e.Filename, e.Err)
}

func (e *IndexCleanupError) Unwrap() error { return e.Err }

// Store is the index side of ingestion.
type Store interface {
	AddChunks(ctx context.Context, chunkEmbeddings []models.ChunkEmbedding) error
	DeleteBySource(ctx context.Context, source string) error
	Count(ctx context.Context) (int, error)
}

// Result summarizes one indexed document.
type Result struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Pages    int    `json:"pages"`
}

// Service owns the documents directory and keeps the index in step with it.
type Service struct {
	cfg      *config.Config
	store    Store
	embedder *embeddings.EmbedderImpl
}

func NewService(cfg *config.Config, store Store, embedder *embeddings.EmbedderImpl) *Service {
	return &Service{cfg: cfg, store: store, embedder: embedder}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// sanitizeFilename strips directory components and characters that are not
// safe in a stored filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// Upload stores one document in the documents directory and indexes it.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	filename = sanitizeFilename(filename)
	if filename == "" {
		return nil, ErrNoFilename
	}
	if !parser.Supported(strings.ToLower(filepath.Ext(filename))) {
		return nil, &UnsupportedTypeError{Filename: filename}
	}

	if err := os.MkdirAll(s.cfg.Paths.Documents, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}
	path := filepath.Join(s.cfg.Paths.Documents, filename)
	if err := writeFile(path, r); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", filename, err)
	}
	log.Info().Str("file", filename).Msg("Saved file")

	result, err := s.Index(ctx, path)
	if err != nil && (errors.Is(err, ErrInsufficientText) || isParseError(err)) {
		os.Remove(path)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// parseError marks failures that leave nothing worth keeping on disk.
type parseError struct{ err error }

func (e *parseError) Error() string { return e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

func isParseError(err error) bool {
	var pe *parseError
	return errors.As(err, &pe)
}

// Index parses, embeds, and stores a document already on disk. Scanned PDFs
// that yield too little text are OCR'd and reparsed; the index keeps the
// original filename as source.
func (s *Service) Index(ctx context.Context, path string) (*Result, error) {
	filename := filepath.Base(path)

	chunks, err := parser.Parse(path, s.cfg)

	if strings.EqualFold(filepath.Ext(filename), ".pdf") && (err != nil || ocr.Needed(joinContent(chunks))) {
		log.Info().Str("file", filename).Msg("Text extraction too thin, attempting OCR")
		if ocrPath, ocrErr := ocr.Run(ctx, path, s.cfg.Paths.OCR); ocrErr != nil {
			log.Warn().Err(ocrErr).Str("file", filename).Msg("OCR failed, keeping extracted text")
		} else if reparsed, perr := parser.Parse(ocrPath, s.cfg); perr != nil {
			log.Warn().Err(perr).Str("file", filename).Msg("Failed to parse OCR output")
		} else if len(reparsed) > 0 {
			chunks, err = reparsed, nil
		}
	}
	if err != nil {
		return nil, &parseError{fmt.Errorf("failed to parse %s: %w", filename, err)}
	}
	if totalContent(chunks) < minDocumentText {
		return nil, ErrInsufficientText
	}

	embedded, err := embedding.GenerateEmbedding(ctx, s.embedder, filename, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", filename, err)
	}
	if err := s.store.AddChunks(ctx, embedded); err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", filename, err)
	}

	pages := countPages(chunks)
	log.Info().
		Str("file", filename).
		Int("chunks", len(chunks)).
		Int("pages", pages).
		Msg("Indexed document")
	return &Result{Filename: filename, Chunks: len(chunks), Pages: pages}, nil
}

// Delete removes a document's file, its OCR copy, and its index entries.
func (s *Service) Delete(ctx context.Context, filename string) error {
	filename = sanitizeFilename(filename)
	if filename == "" {
		return ErrNoFilename
	}

	path := filepath.Join(s.cfg.Paths.Documents, filename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	log.Info().Str("file", filename).Msg("Deleted file")

	ocrPath := ocr.ArtifactPath(s.cfg.Paths.OCR, filename)
	if err := os.Remove(ocrPath); err == nil {
		log.Info().Str("file", ocrPath).Msg("Deleted OCR copy")
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", ocrPath).Msg("Failed to delete OCR copy")
	}

	if err := s.store.DeleteBySource(ctx, filename); err != nil {
		return &IndexCleanupError{Filename: filename, Err: err}
	}
	return nil
}

// Documents lists the stored document filenames.
func (s *Service) Documents() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Paths.Documents)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of indexed chunks.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func joinContent(chunks []models.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func totalContent(chunks []models.Chunk) int {
	total := 0
	for _, c := range chunks {
		total += len(c.Content)
	}
	return total
}

func countPages(chunks []models.Chunk) int {
	pages := make(map[int]struct{})
	for _, c := range chunks {
		pages[c.PageNumber] = struct{}{}
	}
	return len(pages)
}

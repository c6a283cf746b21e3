// Package qa answers questions over indexed documents, narrowing to a
// single source or page when the question calls for one.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/llm"
	"docqa/internal/retrieval"
)

const (
	// answerK caps the chunks fed to the model for a standard question.
	answerK = 6
	// pageFallbackK caps the last-resort similarity lookup for a page.
	pageFallbackK = 15
	// rawContentPreview bounds the raw content echoed when the model
	// produces no answer for a page question.
	rawContentPreview = 300
)

var (
	ErrEmptyQuestion = errors.New("no question provided")
	ErrNoContext     = errors.New("context retrieval returned empty results")
	ErrEmptyAnswer   = errors.New("model returned an empty answer")
)

// EmptyAnswerMessage is the client-facing text for ErrEmptyAnswer.
const EmptyAnswerMessage = "I couldn't generate a proper response based on the provided document. Please try rephrasing your question."

// NoPageContentError reports that nothing is indexed for the requested page.
type NoPageContentError struct {
	Source string
	Page   int
}

func (e *NoPageContentError) Error() string {
	return fmt.Sprintf("no content found for page %d of %s", e.Page, e.Source)
}

// Message is the client-facing text for the missing page.
func (e *NoPageContentError) Message() string {
	return fmt.Sprintf("I couldn't find any content from page %d of %s. Please check if this page exists in the document or try another page number.", e.Page, e.Source)
}

// Retriever finds document context for a question. Index failures surface
// in the results themselves, never as errors.
type Retriever interface {
	Retrieve(ctx context.Context, question string, opts retrieval.Options) []string
	PageChunks(ctx context.Context, source string, page int) []retrieval.Chunk
}

// Generator produces an answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DocumentLister names the documents questions can be matched against.
type DocumentLister interface {
	Documents() ([]string, error)
}

// Options tune how a question is answered.
type Options struct {
	// RawText returns the retrieved context without model processing.
	RawText bool
	// ExactPage forces page questions to return the page text directly.
	ExactPage bool
}

// Answer is the outcome of one question.
type Answer struct {
	Text      string `json:"answer"`
	Source    string `json:"source,omitempty"`
	Page      int    `json:"page,omitempty"`
	Verbatim  bool   `json:"verbatim,omitempty"`
	Raw       bool   `json:"raw,omitempty"`
	ExactPage bool   `json:"exact_page,omitempty"`
}

// Service wires retrieval and generation into the question flow.
type Service struct {
	retriever Retriever
	generator Generator
	docs      DocumentLister
}

func NewService(retriever Retriever, generator Generator, docs DocumentLister) *Service {
	return &Service{retriever: retriever, generator: generator, docs: docs}
}

// Ask resolves the question's target document and page, retrieves matching
// context, and produces an answer.
func (s *Service) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	files, err := s.docs.Documents()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	source := PickSource(question, files)
	page, _ := ExtractPageNumber(question)

	log.Debug().
		Str("question", question).
		Str("source", source).
		Int("page", page).
		Bool("raw_text", opts.RawText).
		Bool("exact_page", opts.ExactPage).
		Msg("Answering question")

	if source != "" && page > 0 {
		return s.askPage(ctx, question, source, page, opts)
	}
	return s.askStandard(ctx, question, source, page, opts)
}

func (s *Service) askPage(ctx context.Context, question, source string, page int, opts Options) (*Answer, error) {
	chunks := s.retriever.PageChunks(ctx, source, page)

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}

	if len(parts) == 0 {
		// last resort: similarity lookup pinned to the page
		parts = s.retriever.Retrieve(ctx, fmt.Sprintf("page %d of %s", page, source),
			retrieval.Options{K: pageFallbackK, Source: source, Page: page})
	}
	if !anyNonEmpty(parts) {
		return nil, &NoPageContentError{Source: source, Page: page}
	}

	pageContent := strings.Join(parts, "\n\n")

	if opts.RawText || IsPageContentRequest(question, page, opts.ExactPage) {
		return &Answer{
			Text:      llm.CleanPageText(pageContent),
			Source:    source,
			Page:      page,
			ExactPage: true,
		}, nil
	}

	mode := llm.DetectMode(question)
	prompt := llm.Guard(llm.BuildPagePrompt(question, pageContent, source, page, mode))

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return &Answer{
			Text:   fmt.Sprintf("I found content on page %d, but couldn't generate a proper response. Here's the raw content: %s...", page, head(pageContent, rawContentPreview)),
			Source: source,
			Page:   page,
		}, nil
	}

	if mode != llm.ModeVerbatim {
		answer = llm.FormatAsParagraph(answer)
	}
	return &Answer{
		Text:     answer,
		Source:   source,
		Page:     page,
		Verbatim: mode == llm.ModeVerbatim,
	}, nil
}

func (s *Service) askStandard(ctx context.Context, question, source string, page int, opts Options) (*Answer, error) {
	chunks := s.retriever.Retrieve(ctx, question, retrieval.Options{K: answerK, Source: source})
	log.Debug().Int("chunks", len(chunks)).Msg("Retrieved context")

	if !anyNonEmpty(chunks) {
		return nil, ErrNoContext
	}

	if len(chunks) == 1 && chunks[0] == retrieval.FailureNotice {
		return &Answer{Text: retrieval.FailureNotice, Source: source, Page: page}, nil
	}

	if opts.RawText {
		return &Answer{
			Text:   strings.Join(chunks, "\n\n"),
			Source: source,
			Raw:    true,
		}, nil
	}

	mode := llm.DetectMode(question)
	prompt := llm.Guard(llm.BuildPrompt(question, chunks, source, mode))

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, ErrEmptyAnswer
	}

	if mode != llm.ModeVerbatim {
		answer = llm.FormatAsParagraph(answer)
	}
	return &Answer{
		Text:     answer,
		Source:   source,
		Page:     page,
		Verbatim: mode == llm.ModeVerbatim,
	}, nil
}

// PageContent returns the indexed chunk texts for one page of a document.
// The error return is part of the server contract; this implementation
// reports missing pages as an empty slice instead.
func (s *Service) PageContent(ctx context.Context, source string, page int) ([]string, error) {
	chunks := s.retriever.PageChunks(ctx, source, page)
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return parts, nil
}

func anyNonEmpty(chunks []string) bool {
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			return true
		}
	}
	return false
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

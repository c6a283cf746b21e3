package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/ingest"
	"docqa/internal/llm"
	"docqa/internal/qa"
)

// maxUploadBytes bounds document uploads.
const maxUploadBytes = 64 << 20

func (s *Server) handleAskQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question  string `json:"question"`
		RawText   bool   `json:"raw_text"`
		ExactPage bool   `json:"exact_page"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondError(w, http.StatusBadRequest, "No question provided")
		return
	}

	if s.models.Model() == "" && !req.RawText && !req.ExactPage {
		modelsMsg := "No models available"
		if available, err := s.models.Available(r.Context()); err == nil && len(available) > 0 {
			modelsMsg = "Available models: " + strings.Join(available, ", ")
		}
		respond(w, http.StatusInternalServerError, map[string]any{
			"answer": "No LLM model configured. Please install a model with 'ollama pull <model_name>' and restart the service. " + modelsMsg,
		})
		return
	}

	ans, err := s.qa.Ask(r.Context(), question, qa.Options{
		RawText:   req.RawText,
		ExactPage: req.ExactPage,
	})
	if err != nil {
		var notFound *qa.NoPageContentError
		switch {
		case errors.Is(err, qa.ErrEmptyQuestion):
			respondError(w, http.StatusBadRequest, "No question provided")
		case errors.As(err, &notFound):
			respond(w, http.StatusNotFound, map[string]any{
				"answer": notFound.Message(),
				"source": notFound.Source,
				"page":   notFound.Page,
			})
		case errors.Is(err, qa.ErrEmptyAnswer):
			respond(w, http.StatusInternalServerError, map[string]any{
				"answer": qa.EmptyAnswerMessage,
			})
		default:
			log.Error().Err(err).Msg("Failed to answer question")
			respond(w, http.StatusInternalServerError, map[string]any{
				"answer": "An error occurred: " + err.Error(),
			})
		}
		return
	}

	respond(w, http.StatusOK, ans)
}

type pageContentRequest struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	Format   bool   `json:"format"`
}

func (s *Server) handleExactPageContent(w http.ResponseWriter, r *http.Request) {
	var req pageContentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Document == "" || req.Page < 1 {
		respondError(w, http.StatusBadRequest, "Document name and page number are required")
		return
	}

	chunks, err := s.qa.PageContent(r.Context(), req.Document, req.Page)
	if err != nil {
		log.Error().Err(err).Str("document", req.Document).Int("page", req.Page).Msg("Failed to retrieve page content")
		respondError(w, http.StatusInternalServerError, "Error retrieving exact page content: "+err.Error())
		return
	}
	if len(chunks) == 0 {
		respond(w, http.StatusNotFound, map[string]any{
			"error":  fmt.Sprintf("No content found for page %d in document %s", req.Page, req.Document),
			"source": req.Document,
			"page":   req.Page,
		})
		return
	}

	content := strings.Join(chunks, "\n\n")
	if req.Format {
		content = llm.CleanPageText(content)
	}

	respond(w, http.StatusOK, map[string]any{
		"content": content,
		"chunks":  chunks,
		"source":  req.Document,
		"page":    req.Page,
	})
}

func (s *Server) handleRawPageContent(w http.ResponseWriter, r *http.Request) {
	var req pageContentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Document == "" || req.Page < 1 {
		respondError(w, http.StatusBadRequest, "Document name and page number are required")
		return
	}

	chunks, err := s.qa.PageContent(r.Context(), req.Document, req.Page)
	if err != nil {
		log.Error().Err(err).Str("document", req.Document).Int("page", req.Page).Msg("Failed to retrieve page content")
		respondError(w, http.StatusInternalServerError, "Error retrieving raw content: "+err.Error())
		return
	}
	if len(chunks) == 0 {
		respond(w, http.StatusNotFound, map[string]any{
			"error":  fmt.Sprintf("No content found for page %d in document %s", req.Page, req.Document),
			"source": req.Document,
			"page":   req.Page,
		})
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"content": chunks,
		"source":  req.Document,
		"page":    req.Page,
	})
}

func (s *Server) handleAvailableModels(w http.ResponseWriter, r *http.Request) {
	available, err := s.models.Available(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list models: "+err.Error())
		return
	}

	status := "available"
	if s.models.Model() == "" {
		status = "not configured"
	}
	respond(w, http.StatusOK, map[string]any{
		"available_models": available,
		"current_model":    s.models.Model(),
		"status":           status,
	})
}

func (s *Server) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Model == "" {
		respondError(w, http.StatusBadRequest, "No model name provided")
		return
	}

	available, err := s.models.Available(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list models: "+err.Error())
		return
	}

	installed := false
	for _, m := range available {
		if m == req.Model {
			installed = true
			break
		}
	}
	if !installed {
		respond(w, http.StatusNotFound, map[string]any{
			"error":            fmt.Sprintf("Model %s not available. Please install it with 'ollama pull %s'", req.Model, req.Model),
			"available_models": available,
		})
		return
	}

	s.models.SetModel(req.Model)
	respond(w, http.StatusOK, map[string]any{
		"message":       "Successfully switched to model: " + req.Model,
		"current_model": req.Model,
		"status":        "available",
	})
}

func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingestor.Documents()
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]any{
			"error":     "Error retrieving document list: " + err.Error(),
			"documents": []string{},
		})
		return
	}
	if docs == nil {
		docs = []string{}
	}

	message := fmt.Sprintf("Found %d documents", len(docs))
	if len(docs) == 0 {
		message = "No documents found"
	}
	respond(w, http.StatusOK, map[string]any{
		"message":   message,
		"documents": docs,
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	indexStatus := "loaded"
	count, err := s.ingestor.Count(r.Context())
	if err != nil {
		indexStatus = "not loaded"
	}

	docs, err := s.ingestor.Documents()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list documents for status")
	}

	available, err := s.models.Available(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list models for status")
	}

	modelStatus := "available"
	if s.models.Model() == "" {
		modelStatus = "not configured"
	}

	respond(w, http.StatusOK, map[string]any{
		"index_status":     indexStatus,
		"indexed_chunks":   count,
		"documents_found":  len(docs),
		"model_status":     modelStatus,
		"current_model":    s.models.Model(),
		"available_models": available,
		"ollama_url":       s.models.BaseURL(),
		"index_errors":     s.stats.IndexErrors(),
	})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("document")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file part in request")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "No file selected")
		return
	}

	res, err := s.ingestor.Upload(r.Context(), header.Filename, file)
	if err != nil {
		var unsupported *ingest.UnsupportedTypeError
		switch {
		case errors.Is(err, ingest.ErrNoFilename):
			respondError(w, http.StatusBadRequest, "No file selected")
		case errors.As(err, &unsupported):
			respondError(w, http.StatusBadRequest, "Invalid file type: "+unsupported.Filename)
		case errors.Is(err, ingest.ErrInsufficientText):
			respondError(w, http.StatusBadRequest, "Failed to extract sufficient text")
		default:
			log.Error().Err(err).Str("file", header.Filename).Msg("Upload failed")
			respondError(w, http.StatusInternalServerError, "Failed to index document: "+err.Error())
		}
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"message": "Indexed " + res.Filename,
		"chunks":  res.Chunks,
		"pages":   res.Pages,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Filename == "" {
		respondError(w, http.StatusBadRequest, "No filename provided")
		return
	}

	if err := s.ingestor.Delete(r.Context(), req.Filename); err != nil {
		var cleanup *ingest.IndexCleanupError
		switch {
		case errors.Is(err, ingest.ErrNotFound):
			respondError(w, http.StatusNotFound, "File not found")
		case errors.Is(err, ingest.ErrNoFilename):
			respondError(w, http.StatusBadRequest, "No filename provided")
		case errors.As(err, &cleanup):
			log.Warn().Err(err).Str("file", req.Filename).Msg("Index cleanup failed")
			respond(w, http.StatusOK, map[string]any{
				"warning": "Document file deleted but failed to update index",
			})
		default:
			log.Error().Err(err).Str("file", req.Filename).Msg("Delete failed")
			respondError(w, http.StatusInternalServerError, "Failed to delete document: "+err.Error())
		}
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Deleted %s and its index entries", req.Filename),
	})
}

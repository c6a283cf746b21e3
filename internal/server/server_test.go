package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/ingest"
	"docqa/internal/qa"
)

type fakeQA struct {
	answer  *qa.Answer
	askErr  error
	chunks  []string
	pageErr error

	lastQuestion string
	lastOpts     qa.Options
	pageSource   string
	pagePage     int
}

func (f *fakeQA) Ask(_ context.Context, question string, opts qa.Options) (*qa.Answer, error) {
	f.lastQuestion = question
	f.lastOpts = opts
	if f.askErr != nil {
		return nil, f.askErr
	}
	return f.answer, nil
}

func (f *fakeQA) PageContent(_ context.Context, source string, page int) ([]string, error) {
	f.pageSource = source
	f.pagePage = page
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	return f.chunks, nil
}

type fakeIngestor struct {
	result    *ingest.Result
	uploadErr error
	deleteErr error
	docs      []string
	docsErr   error
	count     int

	uploadedName string
	uploadedBody []byte
	deletedName  string
}

func (f *fakeIngestor) Upload(_ context.Context, filename string, r io.Reader) (*ingest.Result, error) {
	f.uploadedName = filename
	f.uploadedBody, _ = io.ReadAll(r)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.result, nil
}

func (f *fakeIngestor) Delete(_ context.Context, filename string) error {
	f.deletedName = filename
	return f.deleteErr
}

func (f *fakeIngestor) Documents() ([]string, error) { return f.docs, f.docsErr }

func (f *fakeIngestor) Count(context.Context) (int, error) { return f.count, nil }

type fakeModels struct {
	model     string
	available []string
	listErr   error
	baseURL   string
}

func (f *fakeModels) Model() string        { return f.model }
func (f *fakeModels) SetModel(name string) { f.model = name }
func (f *fakeModels) BaseURL() string      { return f.baseURL }

func (f *fakeModels) Available(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.available, nil
}

type fakeStats struct{ n uint64 }

func (f *fakeStats) IndexErrors() uint64 { return f.n }

func newTestServer(qaSvc *fakeQA, ing *fakeIngestor, models *fakeModels) *Server {
	if qaSvc == nil {
		qaSvc = &fakeQA{}
	}
	if ing == nil {
		ing = &fakeIngestor{}
	}
	if models == nil {
		models = &fakeModels{model: "llama3:8b", available: []string{"llama3:8b"}}
	}
	return New(qaSvc, ing, models, &fakeStats{})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec.Code, payload
}

func TestAskQuestion(t *testing.T) {
	qaSvc := &fakeQA{answer: &qa.Answer{Text: "The answer", Source: "report.pdf"}}
	srv := newTestServer(qaSvc, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ask-question",
		map[string]any{"question": "what is in the report"})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "The answer", payload["answer"])
	assert.Equal(t, "report.pdf", payload["source"])
	assert.Equal(t, "what is in the report", qaSvc.lastQuestion)
}

func TestAskQuestionEmpty(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ask-question",
		map[string]any{"question": "   "})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No question provided", payload["error"])
}

func TestAskQuestionNoModel(t *testing.T) {
	models := &fakeModels{model: "", available: []string{"phi3:mini"}}
	srv := newTestServer(nil, nil, models)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ask-question",
		map[string]any{"question": "anything"})

	assert.Equal(t, http.StatusInternalServerError, code)
	answer, _ := payload["answer"].(string)
	assert.Contains(t, answer, "No LLM model configured")
	assert.Contains(t, answer, "Available models: phi3:mini")
}

func TestAskQuestionRawSkipsModelCheck(t *testing.T) {
	qaSvc := &fakeQA{answer: &qa.Answer{Text: "raw stuff", Raw: true}}
	models := &fakeModels{model: ""}
	srv := newTestServer(qaSvc, nil, models)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ask-question",
		map[string]any{"question": "show it", "raw_text": true})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "raw stuff", payload["answer"])
	assert.Equal(t, true, payload["raw"])
	assert.True(t, qaSvc.lastOpts.RawText)
}

func TestAskQuestionPageNotFound(t *testing.T) {
	qaSvc := &fakeQA{askErr: &qa.NoPageContentError{Source: "report.pdf", Page: 3}}
	srv := newTestServer(qaSvc, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ask-question",
		map[string]any{"question": "what is on page 3 of the report"})

	assert.Equal(t, http.StatusNotFound, code)
	answer, _ := payload["answer"].(string)
	assert.Contains(t, answer, "page 3 of report.pdf")
	assert.EqualValues(t, 3, payload["page"])
}

func TestAskQuestionEmptyAnswer(t *testing.T) {
	qaSvc := &fakeQA{askErr: qa.ErrEmptyAnswer}
	srv := newTestServer(qaSvc, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ask-question",
		map[string]any{"question": "anything"})

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, qa.EmptyAnswerMessage, payload["answer"])
}

func TestAskQuestionInternalError(t *testing.T) {
	qaSvc := &fakeQA{askErr: errors.New("boom")}
	srv := newTestServer(qaSvc, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ask-question",
		map[string]any{"question": "anything"})

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "An error occurred: boom", payload["answer"])
}

func TestExactPageContent(t *testing.T) {
	qaSvc := &fakeQA{chunks: []string{"alpha", "beta"}}
	srv := newTestServer(qaSvc, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/exact-page-content",
		map[string]any{"document": "report.pdf", "page": 2})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alpha\n\nbeta", payload["content"])
	assert.Len(t, payload["chunks"], 2)
	assert.Equal(t, "report.pdf", payload["source"])
	assert.EqualValues(t, 2, payload["page"])
	assert.Equal(t, "report.pdf", qaSvc.pageSource)
	assert.Equal(t, 2, qaSvc.pagePage)
}

func TestExactPageContentFormatted(t *testing.T) {
	qaSvc := &fakeQA{chunks: []string{"alpha    beta"}}
	srv := newTestServer(qaSvc, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/exact-page-content",
		map[string]any{"document": "report.pdf", "page": 2, "format": true})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alpha beta", payload["content"])
}

func TestExactPageContentMissingParams(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/exact-page-content",
		map[string]any{"document": "", "page": 0})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Document name and page number are required", payload["error"])
}

func TestExactPageContentNotFound(t *testing.T) {
	srv := newTestServer(&fakeQA{}, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/exact-page-content",
		map[string]any{"document": "report.pdf", "page": 9})

	assert.Equal(t, http.StatusNotFound, code)
	errMsg, _ := payload["error"].(string)
	assert.Contains(t, errMsg, "No content found for page 9 in document report.pdf")
}

func TestRawPageContent(t *testing.T) {
	qaSvc := &fakeQA{chunks: []string{"alpha", "beta"}}
	srv := newTestServer(qaSvc, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/raw-page-content",
		map[string]any{"document": "report.pdf", "page": 2})

	assert.Equal(t, http.StatusOK, code)
	content, ok := payload["content"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"alpha", "beta"}, content)
}

func TestAvailableModels(t *testing.T) {
	models := &fakeModels{model: "llama3:8b", available: []string{"llama3:8b", "phi3:mini"}}
	srv := newTestServer(nil, nil, models)

	code, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/available-models", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "llama3:8b", payload["current_model"])
	assert.Equal(t, "available", payload["status"])
	assert.Len(t, payload["available_models"], 2)
}

func TestAvailableModelsNotConfigured(t *testing.T) {
	models := &fakeModels{model: "", available: []string{"phi3:mini"}}
	srv := newTestServer(nil, nil, models)

	code, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/available-models", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "not configured", payload["status"])
}

func TestSelectModel(t *testing.T) {
	models := &fakeModels{model: "llama3:8b", available: []string{"llama3:8b", "phi3:mini"}}
	srv := newTestServer(nil, nil, models)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/select-model",
		map[string]any{"model": "phi3:mini"})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "phi3:mini", payload["current_model"])
	assert.Equal(t, "phi3:mini", models.model)
}

func TestSelectModelUnknown(t *testing.T) {
	models := &fakeModels{model: "llama3:8b", available: []string{"llama3:8b"}}
	srv := newTestServer(nil, nil, models)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/select-model",
		map[string]any{"model": "missing:1b"})

	assert.Equal(t, http.StatusNotFound, code)
	errMsg, _ := payload["error"].(string)
	assert.Contains(t, errMsg, "Model missing:1b not available")
	assert.Equal(t, "llama3:8b", models.model)
}

func TestSelectModelMissingName(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/select-model",
		map[string]any{})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No model name provided", payload["error"])
}

func TestDocumentList(t *testing.T) {
	ing := &fakeIngestor{docs: []string{"a.txt", "b.pdf"}}
	srv := newTestServer(nil, ing, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/document-list", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Found 2 documents", payload["message"])
	assert.Len(t, payload["documents"], 2)
}

func TestDocumentListEmpty(t *testing.T) {
	srv := newTestServer(nil, &fakeIngestor{}, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/document-list", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "No documents found", payload["message"])
}

func TestSystemStatus(t *testing.T) {
	qaSvc := &fakeQA{}
	ing := &fakeIngestor{count: 12, docs: []string{"x.pdf", "y.txt"}}
	models := &fakeModels{model: "llama3:8b", available: []string{"llama3:8b"}, baseURL: "http://localhost:11434"}
	srv := New(qaSvc, ing, models, &fakeStats{n: 4})

	code, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/system-status", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "loaded", payload["index_status"])
	assert.EqualValues(t, 12, payload["indexed_chunks"])
	assert.EqualValues(t, 2, payload["documents_found"])
	assert.Equal(t, "available", payload["model_status"])
	assert.Equal(t, "http://localhost:11434", payload["ollama_url"])
	assert.EqualValues(t, 4, payload["index_errors"])
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/upload-document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{Filename: "new.txt", Chunks: 3, Pages: 1}}
	srv := newTestServer(nil, ing, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "new.txt", "hello document"))

	assert.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "Indexed new.txt", payload["message"])
	assert.EqualValues(t, 3, payload["chunks"])

	assert.Equal(t, "new.txt", ing.uploadedName)
	assert.Equal(t, "hello document", string(ing.uploadedBody))
}

func TestUploadDocumentMissingPart(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ingest/upload-document", nil)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file part in request", payload["error"])
}

func TestUploadDocumentBadType(t *testing.T) {
	ing := &fakeIngestor{uploadErr: &ingest.UnsupportedTypeError{Filename: "x.exe"}}
	srv := newTestServer(nil, ing, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "x.exe", "MZ"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "Invalid file type: x.exe", payload["error"])
}

func TestUploadDocumentInsufficientText(t *testing.T) {
	ing := &fakeIngestor{uploadErr: ingest.ErrInsufficientText}
	srv := newTestServer(nil, ing, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "thin.pdf", "x"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "Failed to extract sufficient text", payload["error"])
}

func TestDeleteDocument(t *testing.T) {
	ing := &fakeIngestor{}
	srv := newTestServer(nil, ing, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ingest/delete-document",
		map[string]any{"filename": "gone.txt"})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Deleted gone.txt and its index entries", payload["message"])
	assert.Equal(t, "gone.txt", ing.deletedName)
}

func TestDeleteDocumentNotFound(t *testing.T) {
	ing := &fakeIngestor{deleteErr: ingest.ErrNotFound}
	srv := newTestServer(nil, ing, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ingest/delete-document",
		map[string]any{"filename": "missing.txt"})

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "File not found", payload["error"])
}

func TestDeleteDocumentIndexWarning(t *testing.T) {
	ing := &fakeIngestor{deleteErr: &ingest.IndexCleanupError{Filename: "f.txt", Err: errors.New("db down")}}
	srv := newTestServer(nil, ing, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ingest/delete-document",
		map[string]any{"filename": "f.txt"})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Document file deleted but failed to update index", payload["warning"])
}

func TestDeleteDocumentMissingFilename(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	code, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/ingest/delete-document",
		map[string]any{})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No filename provided", payload["error"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ask-question", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

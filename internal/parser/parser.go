package parser

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docqa/internal/config"
	"docqa/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

const (
	defaultChunkSize    = 500 // characters
	defaultChunkOverlap = 50  // characters

	// formats without physical pages get estimated ones
	paragraphsPerPage = 18
	linesPerPage      = 40
)

// file extensions accepted for ingestion
var supportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt", ".md"}

// Supported reports whether files with the given extension can be parsed.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, s := range supportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// SupportedExtensions returns the accepted file extensions.
func SupportedExtensions() []string {
	out := make([]string, len(supportedExtensions))
	copy(out, supportedExtensions)
	return out
}

type ParserConfig struct {
	Config *config.Config
}

// Parse extracts the text of the file at filePath into overlap-chunked
// pieces, each tagged with its 1-based page number. Formats without
// physical pages get estimated page numbers so page-scoped retrieval still
// works against them.
func Parse(filePath string, cfg *config.Config) ([]models.Chunk, error) {
	if cfg == nil {
		cfg = &config.Config{
			RAG: config.RAGConfig{
				ChunkSize:    defaultChunkSize,
				ChunkOverlap: defaultChunkOverlap,
			},
		}
	} else if cfg.RAG.ChunkSize == 0 || cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}

	p := ParserConfig{Config: cfg}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return p.parsePDF(filePath)
	case ".docx":
		return p.parseDOCX(filePath)
	case ".pptx":
		return p.parsePPTX(filePath)
	case ".xlsx":
		return p.parseXLSX(filePath)
	case ".ods":
		return p.parseODS(filePath)
	case ".txt":
		return p.parseText(filePath)
	case ".md":
		return p.parseMarkdown(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func (p *ParserConfig) parsePDF(filePath string) ([]models.Chunk, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		chunks = append(chunks, p.getChunks(pageText, i)...)
	}
	return chunks, nil
}

func (p *ParserConfig) parseDOCX(filePath string) ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()

	// No physical pages in a DOCX; estimate them from paragraph count.
	var chunks []models.Chunk
	var pageText strings.Builder
	page := 1
	count := 0
	for _, para := range strings.Split(content, "\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		pageText.WriteString(para)
		pageText.WriteString("\n")
		count++
		if count == paragraphsPerPage {
			chunks = append(chunks, p.getChunks(pageText.String(), page)...)
			pageText.Reset()
			page++
			count = 0
		}
	}
	if pageText.Len() > 0 {
		chunks = append(chunks, p.getChunks(pageText.String(), page)...)
	}
	return chunks, nil
}

func (p *ParserConfig) parsePPTX(filePath string) ([]models.Chunk, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for _, file := range f.File {
		slideNum, ok := slideNumber(file.Name)
		if !ok {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slideText := extractTextFromXML(string(data))
		if strings.TrimSpace(slideText) == "" {
			continue
		}
		// slides double as pages
		chunks = append(chunks, p.getChunks(slideText, slideNum)...)
	}
	return chunks, nil
}

// slideNumber parses the slide index out of a pptx archive entry name like
// "ppt/slides/slide3.xml". Zip entry order is not slide order.
func slideNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (p *ParserConfig) parseXLSX(filePath string) ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		// sheets double as pages, 1-based
		chunks = append(chunks, p.getChunks(text.String(), sheetNum+1)...)
	}
	return chunks, nil
}

func (p *ParserConfig) parseODS(filePath string) ([]models.Chunk, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		chunks = append(chunks, p.getChunks(text.String(), sheetNum+1)...)
	}
	return chunks, nil
}

func (p *ParserConfig) parseText(filePath string) ([]models.Chunk, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.paginateLines(lines), nil
}

// paginateLines groups lines into estimated pages of linesPerPage each and
// chunks every page.
func (p *ParserConfig) paginateLines(lines []string) []models.Chunk {
	var chunks []models.Chunk
	for start := 0; start < len(lines); start += linesPerPage {
		end := min(start+linesPerPage, len(lines))
		pageText := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		chunks = append(chunks, p.getChunks(pageText, start/linesPerPage+1)...)
	}
	return chunks
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}

// chunk content into chunks with maxChars and overlapChars
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	if len(content) == 0 {
		return nil
	}

	var chunks []string
	content = strings.TrimSpace(content)
	contentLen := len(content)

	if contentLen <= maxChars {
		if content == "" {
			return nil
		}
		return []string{content}
	}

	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)

		// Find a clean break point (end of a word or sentence) if possible.
		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		chunk := strings.TrimSpace(content[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		start += maxChars - overlapChars
		if start >= contentLen {
			break
		}
	}

	return chunks
}

// get chunks from content and page number
func (p *ParserConfig) getChunks(content string, pageNumber int) []models.Chunk {
	var chunks []models.Chunk

	chunkStrings := chunkContent(content, p.Config.RAG.ChunkSize, p.Config.RAG.ChunkOverlap)
	for i, chunkString := range chunkStrings {
		chunks = append(chunks, models.Chunk{
			Content:    chunkString,
			PageNumber: pageNumber,
			ChunkID:    i + 1,
		})
	}

	return chunks
}

package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docqa/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(size, overlap int) *config.Config {
	return &config.Config{RAG: config.RAGConfig{ChunkSize: size, ChunkOverlap: overlap}}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".pdf"))
	assert.True(t, Supported(".TXT"))
	assert.True(t, Supported(".md"))
	assert.False(t, Supported(".exe"))
	assert.False(t, Supported(""))
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := Parse("document.xyz", testConfig(500, 50))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestParseTextPaging(t *testing.T) {
	// 85 lines: pages of 40 lines give pages 1, 2 and a 5-line page 3.
	var sb strings.Builder
	for i := 1; i <= 85; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	path := writeFile(t, "doc.txt", sb.String())

	chunks, err := Parse(path, testConfig(10000, 0))
	require.NoError(t, err)
	require.Len(t, chunks, 3, "one chunk per estimated page at this chunk size")

	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[1].PageNumber)
	assert.Equal(t, 3, chunks[2].PageNumber)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "line 1\n"))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "line 41\n"))
	assert.True(t, strings.HasPrefix(chunks[2].Content, "line 81\n"))
}

func TestParseTextSkipsBlankPages(t *testing.T) {
	content := strings.Repeat("\n", 45) + "real content here\n"
	path := writeFile(t, "sparse.txt", content)

	chunks, err := Parse(path, testConfig(500, 50))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].PageNumber, "blank first page dropped, numbering preserved")
	assert.Equal(t, "real content here", chunks[0].Content)
}

func TestParseTextChunking(t *testing.T) {
	// One page of text long enough to split into several chunks.
	line := strings.Repeat("word ", 20) // 100 chars
	content := strings.TrimSpace(strings.Repeat(line+"\n", 10))
	path := writeFile(t, "long.txt", content)

	chunks, err := Parse(path, testConfig(300, 30))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 300)
		assert.Equal(t, 1, c.PageNumber)
		assert.Equal(t, i+1, c.ChunkID, "chunk ids are 1-based and sequential within a page")
	}
}

func TestParseMarkdownStripsMarkup(t *testing.T) {
	md := `# Title

Some **bold** prose with a [link](https://example.com).

- item one
- item two

` + "```go\ncode line\n```\n"
	path := writeFile(t, "notes.md", md)

	chunks, err := Parse(path, testConfig(10000, 0))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	text := chunks[0].Content
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "bold")
	assert.Contains(t, text, "link")
	assert.Contains(t, text, "item one")
	assert.Contains(t, text, "code line")
	assert.NotContains(t, text, "#")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "](")
	assert.NotContains(t, text, "<p>")
}

func TestChunkContent(t *testing.T) {
	t.Run("short content is one chunk", func(t *testing.T) {
		got := chunkContent("tiny", 100, 10)
		assert.Equal(t, []string{"tiny"}, got)
	})

	t.Run("empty content yields nothing", func(t *testing.T) {
		assert.Nil(t, chunkContent("", 100, 10))
		assert.Nil(t, chunkContent("   ", 100, 10))
	})

	t.Run("invalid max yields nothing", func(t *testing.T) {
		assert.Nil(t, chunkContent("text", 0, 10))
	})

	t.Run("chunks overlap", func(t *testing.T) {
		content := strings.Repeat("abcde ", 100) // 600 chars
		got := chunkContent(content, 200, 50)
		require.Greater(t, len(got), 2)
		for _, c := range got {
			assert.LessOrEqual(t, len(c), 200)
		}
	})

	t.Run("breaks on word boundaries when possible", func(t *testing.T) {
		content := strings.Repeat("alpha beta gamma delta ", 30)
		got := chunkContent(content, 100, 20)
		for _, c := range got[:len(got)-1] {
			last := c[len(c)-1]
			assert.NotEqual(t, byte(' '), last, "chunks are trimmed")
		}
	})

	t.Run("excessive overlap is clamped", func(t *testing.T) {
		content := strings.Repeat("x", 500)
		got := chunkContent(content, 100, 100)
		assert.NotEmpty(t, got, "overlap >= max must not loop forever")
	})
}

func TestSlideNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"ppt/slides/slide1.xml", 1, true},
		{"ppt/slides/slide12.xml", 12, true},
		{"ppt/slides/_rels/slide1.xml.rels", 0, false},
		{"ppt/media/image1.png", 0, false},
		{"ppt/slides/slide.xml", 0, false},
	}
	for _, tt := range tests {
		got, ok := slideNumber(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

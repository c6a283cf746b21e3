package parser

import (
	"os"
	"strings"

	"docqa/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

func (p *ParserConfig) parseMarkdown(filePath string) ([]models.Chunk, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	plain, err := markdownText(source)
	if err != nil {
		return nil, err
	}
	return p.paginateLines(strings.Split(plain, "\n")), nil
}

// markdownText walks the markdown AST and returns only the prose, with
// block boundaries as newlines. Markup never reaches the index.
func markdownText(source []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(source))

	var out strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			out.Write(node.Segment.Value(source))
			if node.HardLineBreak() || node.SoftLineBreak() {
				out.WriteString("\n")
			}
		case *ast.Heading, *ast.Paragraph, *ast.ListItem:
			if out.Len() > 0 {
				out.WriteString("\n")
			}
		case *ast.FencedCodeBlock:
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			for i := 0; i < node.Lines().Len(); i++ {
				line := node.Lines().At(i)
				out.Write(line.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

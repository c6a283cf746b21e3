// Package ocr recovers text from scanned PDFs with ocrmypdf.
package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// minTextLength is the extracted-text size below which a PDF is assumed to
// be image-only.
const minTextLength = 100

// suspiciousMarkers show up when a PDF's text layer is broken.
var suspiciousMarkers = []string{"�", "TCPDF"}

// Needed reports whether extracted PDF text looks like a failed extraction
// that OCR could recover.
func Needed(text string) bool {
	if len(strings.TrimSpace(text)) < minTextLength {
		return true
	}
	for _, marker := range suspiciousMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// ArtifactPath is where Run writes the OCR'd copy of the named document.
func ArtifactPath(outDir, filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return filepath.Join(outDir, base+"_ocr.pdf")
}

// Run OCRs the PDF into outDir and returns the path of the new file.
func Run(ctx context.Context, pdfPath, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create OCR directory: %w", err)
	}

	outPath := ArtifactPath(outDir, filepath.Base(pdfPath))
	cmd := exec.CommandContext(ctx, "ocrmypdf", "--force-ocr", pdfPath, outPath)

	log.Info().Str("command", strings.Join(cmd.Args, " ")).Msg("Running OCR")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ocrmypdf failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return outPath, nil
}

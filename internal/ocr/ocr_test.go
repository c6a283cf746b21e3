package ocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeeded(t *testing.T) {
	clean := strings.Repeat("readable text ", 20)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"too short", "just a title", true},
		{"whitespace only", strings.Repeat(" \n\t", 100), true},
		{"clean text", clean, false},
		{"replacement characters", clean + "��", true},
		{"broken generator marker", clean + " TCPDF", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Needed(tt.text))
		})
	}
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "ocr/scan_ocr.pdf", ArtifactPath("ocr", "scan.pdf"))
	assert.Equal(t, "ocr/report.v2_ocr.pdf", ArtifactPath("ocr", "report.v2.pdf"))
	assert.Equal(t, "ocr/noext_ocr.pdf", ArtifactPath("ocr", "noext"))
}

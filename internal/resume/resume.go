// Package resume renders résumé exports.
//
// Two renderers exist:
//   - PDFRenderer: a single-column A4 document
//   - TextRenderer: plain text for pasting into application forms
//
// Renderers are pure: charging the export quota is the caller's job.
package resume

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

// Renderer writes a résumé in one format.
type Renderer interface {
	// Render writes doc to w and returns the number of bytes written.
	Render(ctx context.Context, doc *domain.Resume, w io.Writer) (int64, error)

	// Format returns the output format of this renderer.
	Format() domain.ResumeFormat

	// ContentType returns the MIME type of the output.
	ContentType() string
}

// ForFormat returns the renderer for format. An empty format means PDF.
func ForFormat(format domain.ResumeFormat) (Renderer, error) {
	switch format {
	case "", domain.ResumeFormatPDF:
		return NewPDFRenderer(), nil
	case domain.ResumeFormatText:
		return TextRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported resume format %q", format)
	}
}

// Filename is the download name for doc in format.
func Filename(doc *domain.Resume, format domain.ResumeFormat) string {
	if format == "" {
		format = domain.ResumeFormatPDF
	}
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ' || r == '-' || r == '_':
			return '-'
		}
		return -1
	}, strings.TrimSpace(doc.Name))
	if base == "" {
		return "resume." + string(format)
	}
	return base + "-resume." + string(format)
}

// Palette is the colour scheme of exported documents.
var Palette = struct {
	Accent    string
	TextDark  string
	TextMuted string
	Rule      string
}{
	Accent:    "#4F46E5",
	TextDark:  "#111827",
	TextMuted: "#6B7280",
	Rule:      "#E5E7EB",
}

// HexToRGB converts "#RRGGBB" or "RRGGBB" to components. Malformed input
// yields black.
func HexToRGB(hex string) (r, g, b int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}

// contactLine joins the non-empty contact fields.
func contactLine(doc *domain.Resume) string {
	var parts []string
	for _, s := range []string{doc.Email, doc.Phone, doc.Location} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "  |  ")
}

// entryHeading is "Title, Organization".
func entryHeading(e domain.ResumeEntry) string {
	if e.Organization == "" {
		return e.Title
	}
	return e.Title + ", " + e.Organization
}

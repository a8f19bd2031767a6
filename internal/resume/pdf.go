package resume

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

// =============================================================================
// PDF Renderer
// =============================================================================

// PDFRenderer renders résumés as A4 PDF documents.
type PDFRenderer struct {
	// Page dimensions (A4 in mm)
	pageWidth float64
	margin    float64

	// Content area
	contentWidth float64
}

// NewPDFRenderer creates a PDF renderer with default settings.
func NewPDFRenderer() *PDFRenderer {
	margin := 18.0
	pageWidth := 210.0
	return &PDFRenderer{
		pageWidth:    pageWidth,
		margin:       margin,
		contentWidth: pageWidth - (2 * margin),
	}
}

func (p *PDFRenderer) Format() domain.ResumeFormat { return domain.ResumeFormatPDF }

func (p *PDFRenderer) ContentType() string { return "application/pdf" }

// Render lays out doc and writes the finished PDF to w.
func (p *PDFRenderer) Render(ctx context.Context, doc *domain.Resume, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(p.margin, p.margin, p.margin)
	pdf.SetAutoPageBreak(true, 18)

	// Core fonts are cp1252.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(doc.Name+" - Resume", true)
	pdf.SetAuthor(doc.Name, true)
	pdf.SetCreator("Talxify", true)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		p.setTextColor(pdf, Palette.TextMuted)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	p.addHeader(pdf, tr, doc)

	if s := strings.TrimSpace(doc.Summary); s != "" {
		p.addSectionHeader(pdf, "Summary")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(p.contentWidth, 5, tr(s), "", "L", false)
		pdf.Ln(3)
	}

	if len(doc.Experience) > 0 {
		p.addSectionHeader(pdf, "Experience")
		for _, e := range doc.Experience {
			p.addEntry(pdf, tr, e)
		}
	}

	if len(doc.Education) > 0 {
		p.addSectionHeader(pdf, "Education")
		for _, e := range doc.Education {
			p.addEntry(pdf, tr, e)
		}
	}

	if len(doc.Skills) > 0 {
		p.addSectionHeader(pdf, "Skills")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(p.contentWidth, 5, tr(strings.Join(doc.Skills, ", ")), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("pdf generation error: %w", err)
	}

	// w only ever receives a complete document.
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("pdf output error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// =============================================================================
// Sections
// =============================================================================

func (p *PDFRenderer) addHeader(pdf *fpdf.Fpdf, tr func(string) string, doc *domain.Resume) {
	p.setTextColor(pdf, Palette.TextDark)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 10, tr(doc.Name), "", 1, "L", false, 0, "")

	if doc.Headline != "" {
		p.setTextColor(pdf, Palette.Accent)
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 7, tr(doc.Headline), "", 1, "L", false, 0, "")
	}

	if contact := contactLine(doc); contact != "" {
		p.setTextColor(pdf, Palette.TextMuted)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 6, tr(contact), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func (p *PDFRenderer) addSectionHeader(pdf *fpdf.Fpdf, title string) {
	if pdf.GetY() > 260 {
		pdf.AddPage()
	}

	p.setTextColor(pdf, Palette.Accent)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, strings.ToUpper(title), "", 1, "L", false, 0, "")

	r, g, b := HexToRGB(Palette.Rule)
	pdf.SetDrawColor(r, g, b)
	pdf.SetLineWidth(0.3)
	pdf.Line(p.margin, pdf.GetY(), p.pageWidth-p.margin, pdf.GetY())
	pdf.Ln(3)

	p.setTextColor(pdf, Palette.TextDark)
}

func (p *PDFRenderer) addEntry(pdf *fpdf.Fpdf, tr func(string) string, e domain.ResumeEntry) {
	pdf.SetFont("Helvetica", "B", 10)
	heading := tr(entryHeading(e))
	if e.Period != "" {
		periodWidth := 45.0
		pdf.CellFormat(p.contentWidth-periodWidth, 6, heading, "", 0, "L", false, 0, "")
		p.setTextColor(pdf, Palette.TextMuted)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(periodWidth, 6, tr(e.Period), "", 1, "R", false, 0, "")
		p.setTextColor(pdf, Palette.TextDark)
	} else {
		pdf.CellFormat(0, 6, heading, "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, d := range e.Details {
		pdf.SetX(p.margin + 4)
		pdf.MultiCell(p.contentWidth-4, 5, tr("- "+d), "", "L", false)
	}
	pdf.Ln(2)
}

func (p *PDFRenderer) setTextColor(pdf *fpdf.Fpdf, hex string) {
	r, g, b := HexToRGB(hex)
	pdf.SetTextColor(r, g, b)
}

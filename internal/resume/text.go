package resume

import (
	"context"
	"io"
	"strings"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

// TextRenderer renders résumés as plain UTF-8 text.
type TextRenderer struct{}

func (TextRenderer) Format() domain.ResumeFormat { return domain.ResumeFormatText }

func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

func (TextRenderer) Render(ctx context.Context, doc *domain.Resume, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var b strings.Builder
	b.WriteString(doc.Name + "\n")
	if doc.Headline != "" {
		b.WriteString(doc.Headline + "\n")
	}
	if contact := contactLine(doc); contact != "" {
		b.WriteString(contact + "\n")
	}

	section := func(title string) {
		b.WriteString("\n" + strings.ToUpper(title) + "\n")
		b.WriteString(strings.Repeat("-", len(title)) + "\n")
	}
	entries := func(list []domain.ResumeEntry) {
		for _, e := range list {
			b.WriteString(entryHeading(e))
			if e.Period != "" {
				b.WriteString(" (" + e.Period + ")")
			}
			b.WriteString("\n")
			for _, d := range e.Details {
				b.WriteString("  - " + d + "\n")
			}
		}
	}

	if s := strings.TrimSpace(doc.Summary); s != "" {
		section("Summary")
		b.WriteString(s + "\n")
	}
	if len(doc.Experience) > 0 {
		section("Experience")
		entries(doc.Experience)
	}
	if len(doc.Education) > 0 {
		section("Education")
		entries(doc.Education)
	}
	if len(doc.Skills) > 0 {
		section("Skills")
		b.WriteString(strings.Join(doc.Skills, ", ") + "\n")
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/labportal/portal/internal/domain/labtest"
	"github.com/labportal/portal/internal/domain/patient"
)

// RenderData carries everything a renderer needs to lay out a report.
type RenderData struct {
	Test    *labtest.Test
	Patient *patient.Patient
}

// Renderer produces the bytes of a generated report artifact.
type Renderer interface {
	Render(ctx context.Context, data RenderData) ([]byte, error)
}

// PlainRenderer emits a minimal single-page PDF with the test identifiers
// and result summary. It exists so the custody flow works end to end
// without a layout engine; deployments swap in their own Renderer.
type PlainRenderer struct{}

func (PlainRenderer) Render(_ context.Context, data RenderData) ([]byte, error) {
	if data.Test == nil || data.Patient == nil {
		return nil, fmt.Errorf("%w: renderer requires test and patient", ErrValidation)
	}

	summary := ""
	if data.Test.ResultSummary != nil {
		summary = *data.Test.ResultSummary
	}
	text := fmt.Sprintf("Referto %s / %s %s / %s / %s",
		data.Test.Code, data.Patient.GivenName, data.Patient.FamilyName,
		data.Test.Category, summary)

	var content bytes.Buffer
	fmt.Fprintf(&content, "BT /F1 11 Tf 40 760 Td (%s) Tj ET", escapePDF(text))
	fmt.Fprintf(&content, " BT /F1 9 Tf 40 740 Td (%s) Tj ET",
		escapePDF(time.Now().Format("2006-01-02 15:04")))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, 0, 5)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}
	writeObj("1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	writeObj("2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n")
	writeObj("3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >> endobj\n")
	writeObj(fmt.Sprintf("4 0 obj << /Length %d >> stream\n%s\nendstream endobj\n",
		content.Len(), content.String()))
	writeObj("5 0 obj << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> endobj\n")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer << /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xref)
	return buf.Bytes(), nil
}

func escapePDF(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			if r < 128 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

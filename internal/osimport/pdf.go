package osimport

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ReadPDFText returns the text layer of a PDF, one line per text row
func ReadPDFText(r io.Reader) (string, error) {
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(r)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), size)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		for _, row := range rows {
			writeRow(&sb, row.Content)
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

// writeRow joins text runs, adding a space only where the runs are visibly apart
func writeRow(sb *strings.Builder, runs []pdf.Text) {
	for i, t := range runs {
		if i > 0 {
			prev := runs[i-1]
			if t.X-(prev.X+prev.W) > prev.FontSize*0.15 {
				sb.WriteString(" ")
			}
		}
		sb.WriteString(t.S)
	}
}

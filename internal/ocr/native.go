package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// NativePDF reads embedded PDF text in pure Go, one line per text row.
type NativePDF struct{}

// ExtractText implements Extractor.
func (NativePDF) ExtractText(ctx context.Context, path string) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The parser panics on some damaged files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", eris.New(fmt.Sprintf("ocr: parse pdf %s: %v", path, r))
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open pdf %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", eris.Wrapf(err, "ocr: stat pdf %s", path)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read pdf %s", path)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", eris.Wrapf(err, "ocr: pdf %s page %d", path, i)
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			sb.WriteString(strings.Join(words, " "))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

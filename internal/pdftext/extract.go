// Package pdftext extracts plain text from PDF files for use as chat
// context. Layout is discarded; the output is a whitespace-normalized
// stream of words per page.
package pdftext

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

var extraneousWhitespace = regexp.MustCompile(`\s+`)

// Result holds the extracted text of one document.
type Result struct {
	PageCount int
	Text      string
}

// Extract opens the PDF at path and extracts the text of every page. Pages
// are processed concurrently; pages that yield no text (scans, figures)
// contribute nothing rather than failing the document.
func Extract(path string) (Result, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer file.Close()

	total := reader.NumPage()
	pages := make([]string, total)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := 1; i <= total; i++ {
		g.Go(func() error {
			page := reader.Page(i)
			if page.V.IsNull() {
				return nil
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return nil
			}
			pages[i-1] = collapse(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var nonEmpty []string
	for _, p := range pages {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	return Result{
		PageCount: total,
		Text:      strings.Join(nonEmpty, "\n"),
	}, nil
}

// collapse squeezes all whitespace runs to single spaces.
func collapse(s string) string {
	return strings.TrimSpace(extraneousWhitespace.ReplaceAllString(s, " "))
}

package pdftext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestPDF builds a minimal single-font PDF with one page per given
// string, computing the xref table at runtime so offsets are always valid.
func writeTestPDF(t *testing.T, pageTexts ...string) string {
	t.Helper()

	var objects []string
	kids := make([]string, len(pageTexts))
	// Object layout: 1 catalog, 2 pages, 3 font, then per page: page obj,
	// content obj.
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+i*2)
	}

	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pageTexts)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pageTexts {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+i*2),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objects)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)

	path := filepath.Join(t.TempDir(), "test.pdf")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("writing test pdf: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	path := writeTestPDF(t, "Hello margin", "Second page")

	res, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", res.PageCount)
	}
	if !strings.Contains(res.Text, "Hello margin") {
		t.Errorf("text missing first page content: %q", res.Text)
	}
	if !strings.Contains(res.Text, "Second page") {
		t.Errorf("text missing second page content: %q", res.Text)
	}
}

func TestExtract_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.pdf")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(path); err == nil {
		t.Error("expected error for non-PDF input")
	}
}

func TestExtract_MissingFile(t *testing.T) {
	if _, err := Extract(filepath.Join(t.TempDir(), "absent.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCollapse(t *testing.T) {
	got := collapse("  a\t\tb\n\nc  ")
	if got != "a b c" {
		t.Errorf("collapse = %q, want %q", got, "a b c")
	}
}

package testutils

import (
	"bytes"
	"fmt"
	"strings"
)

// BuildPDF returns a minimal, valid PDF with one page per entry in pages.
// Each page shows its lines top to bottom in Helvetica, one text line per entry.
func BuildPDF(pages ...[]string) []byte {
	return buildPDF(0, pages)
}

// BuildRotatedPDF is BuildPDF with every page carrying the given /Rotate entry
func BuildRotatedPDF(rotate int, pages ...[]string) []byte {
	return buildPDF(rotate, pages)
}

func buildPDF(rotate int, pages [][]string) []byte {
	if len(pages) == 0 {
		pages = [][]string{{}}
	}

	var buf bytes.Buffer
	offsets := []int{}

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// Object layout: 1 catalog, 2 pages, 3 font, then page/content pairs
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	rotation := ""
	if rotate != 0 {
		rotation = fmt.Sprintf("/Rotate %d ", rotate)
	}

	for i, lines := range pages {
		content := pageContent(lines)
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] %s"+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", rotation, 5+2*i))
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

func pageContent(lines []string) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("T*\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\n", escapeLiteral(line))
	}
	b.WriteString("ET")
	return b.String()
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

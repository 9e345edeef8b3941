package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildPDF assembles a minimal uncompressed PDF with one page per text so the
// extraction path can run against real bytes. Offsets in the xref table are
// computed while writing.
func buildPDF(t *testing.T, pageTexts []string) []byte {
	t.Helper()
	n := len(pageTexts)
	fontObj := 3 + 2*n
	totalObjs := fontObj + 1 // including the free object 0

	var buf bytes.Buffer
	offsets := make([]int, totalObjs)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")

	var kids strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			kids.WriteString(" ")
		}
		fmt.Fprintf(&kids, "%d 0 R", 3+i)
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), n))

	for i := 0; i < n; i++ {
		writeObj(3+i, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			fontObj, 3+n+i))
	}
	for i, text := range pageTexts {
		content := fmt.Sprintf("BT\n/F1 12 Tf\n72 720 Td\n(%s) Tj\nET", text)
		writeObj(3+n+i, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	writeObj(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", totalObjs)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < totalObjs; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", totalObjs, xrefStart)
	return buf.Bytes()
}

func TestTextFromStream_Operators(t *testing.T) {
	stream := []byte("BT\n(Observed) Tj\n[(symptoms) -120 (include)] TJ\n(fever) '\n0 -14 Td\n(and cough) Tj\nT*\n(fatigue) Tj\nET")
	got := textFromStream(stream)
	for _, want := range []string{"Observed", "symptomsinclude", "fever", "and cough", "fatigue"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestDecodePDFString_Escapes(t *testing.T) {
	cases := []struct{ in, want string }{
		{`plain`, "plain"},
		{`a\(b\)c`, "a(b)c"},
		{`line\nnext`, "line\nnext"},
		{`sp\040ace`, "sp ace"},
		{`back\\slash`, `back\slash`},
	}
	for _, c := range cases {
		if got := decodePDFString([]byte(c.in)); got != c.want {
			t.Errorf("decodePDFString(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFromPDF_MultiPage(t *testing.T) {
	texts := []string{"Influenza overview", "Symptoms and spread", "Treatment options"}
	before := tempPDFs(t)

	doc, err := FromPDF(buildPDF(t, texts))
	if err != nil {
		t.Fatalf("FromPDF: %v", err)
	}
	segments := strings.Split(doc.Text, "\n\n")
	if len(segments) != len(texts) {
		t.Fatalf("segments = %d, want %d: %q", len(segments), len(texts), doc.Text)
	}
	for i, want := range texts {
		if segments[i] != want {
			t.Errorf("page %d = %q, want %q", i+1, segments[i], want)
		}
	}
	if doc.Title != texts[0] {
		t.Fatalf("Title = %q, want first page line", doc.Title)
	}

	after := tempPDFs(t)
	if len(after) != len(before) {
		t.Fatalf("temp pdf leaked: before=%d after=%d", len(before), len(after))
	}
}

func TestFromPDF_InvalidInputCleansUpTempFile(t *testing.T) {
	before := tempPDFs(t)
	if _, err := FromPDF([]byte("definitely not a pdf")); err == nil {
		t.Fatal("expected error for invalid pdf bytes")
	}
	after := tempPDFs(t)
	if len(after) != len(before) {
		t.Fatalf("temp pdf leaked: before=%d after=%d", len(before), len(after))
	}
}

func tempPDFs(t *testing.T) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(os.TempDir(), "medsearch-*.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

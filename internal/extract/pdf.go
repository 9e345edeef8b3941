package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// FromPDF writes the PDF body to a transient temp file, extracts text page
// by page, and joins pages with a blank line. The temp file is removed on
// every exit path. Pages without recoverable text are skipped; a PDF with no
// text at all yields an error.
func FromPDF(body []byte) (Document, error) {
	tmp, err := os.CreateTemp("", "medsearch-*.pdf")
	if err != nil {
		return Document{}, fmt.Errorf("temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(body); err != nil {
		return Document{}, fmt.Errorf("write temp pdf: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Document{}, err
	}

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(tmp, conf)
	if err != nil {
		return Document{}, fmt.Errorf("read pdf: %w", err)
	}

	var pages []string
	var title string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		text := pageText(pdfCtx, pageNr)
		if text == "" {
			continue
		}
		if title == "" {
			title = firstLine(text)
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		return Document{}, fmt.Errorf("no text content in pdf")
	}
	return Document{Title: title, Text: strings.Join(pages, "\n\n")}, nil
}

// pageText extracts text from a single page's content stream.
func pageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// textFromStream parses PDF content stream text-showing operators.
func textFromStream(data []byte) string {
	var sb strings.Builder
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		// Tj and TJ operators: (text) Tj / [(text) -100 (more)] TJ
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		// ' operator: move to next line and show text
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		// Td/TD reposition the text cursor
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}
	return cleanPDFText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape, e.g. \040 for space.
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// cleanPDFText collapses whitespace runs while keeping line structure.
func cleanPDFText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			case unicode.IsPrint(r):
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 200 {
			line = line[:200]
		}
		return line
	}
	return ""
}

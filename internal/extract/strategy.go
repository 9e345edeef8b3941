package extract

// Document is a simplified representation of extracted page content.
type Document struct {
	Title string
	Text  string
}

// Strategy converts raw HTML bytes into a cleaned Document. Implementations
// are deterministic, side-effect free, and interchangeable: the extractor
// tries them in priority order until one yields enough usable text.
type Strategy interface {
	Extract(input []byte) Document
}

// MinUsefulLength is the minimum number of characters an extraction must
// produce to count as usable article text. Shorter output usually means the
// strategy only caught navigation chrome or an error page.
const MinUsefulLength = 200

// Usable reports whether the extracted text clears the minimum length bar.
func (d Document) Usable() bool {
	return len(d.Text) > MinUsefulLength
}

package pdfextract

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
)

// Page is the plain text of one PDF page. Number starts at 1.
type Page struct {
	Number int
	Text   string
}

// ExtractText reads the entire content of r and extracts plain text from the PDF.
// Returns empty string and nil error if the PDF has no extractable text.
func ExtractText(r io.Reader) (string, error) {
	pdfReader, err := open(r)
	if err != nil || pdfReader == nil {
		return "", err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ExtractPages returns the text of every page in order. Pages without
// extractable text are returned with an empty Text so numbering stays aligned.
func ExtractPages(r io.Reader) ([]Page, error) {
	pdfReader, err := open(r)
	if err != nil || pdfReader == nil {
		return nil, err
	}
	total := pdfReader.NumPage()
	pages := make([]Page, 0, total)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		p := pdfReader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

func open(r io.Reader) (*pdf.Reader, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return pdf.NewReader(bytes.NewReader(b), int64(len(b)))
}

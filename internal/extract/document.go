package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
)

var (
	// ErrEmptyDocument is returned for content without any text
	ErrEmptyDocument = errors.New("document has no text")

	// ErrUnreadable is returned for content that is neither PDF nor UTF-8 text
	ErrUnreadable = errors.New("document is not readable")
)

var pdfMagic = []byte("%PDF")

// Document is a bill reduced to the text of its pages
type Document struct {
	Filename string
	Pages    []string
}

// Load reads page text from PDF bytes, or splits plain text on form feeds
func Load(filename string, content []byte) (*Document, error) {
	var pages []string
	var err error

	if bytes.HasPrefix(content, pdfMagic) {
		pages, err = pdfPages(content)
		if err != nil {
			return nil, err
		}
	} else {
		if !utf8.Valid(content) {
			return nil, fmt.Errorf("%w: %s", ErrUnreadable, filename)
		}
		pages = strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\f")
	}

	doc := &Document{Filename: filename, Pages: pages}
	if strings.TrimSpace(doc.Text()) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}
	return doc, nil
}

func pdfPages(content []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", ErrUnreadable, err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadable, i+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// Text joins every page
func (d *Document) Text() string {
	return strings.Join(d.Pages, "\n")
}

// Page returns page i (zero based), or "" when the document is shorter
func (d *Document) Page(i int) string {
	if i < 0 || i >= len(d.Pages) {
		return ""
	}
	return d.Pages[i]
}

// From joins the pages starting at page i
func (d *Document) From(i int) string {
	if i >= len(d.Pages) {
		return ""
	}
	if i < 0 {
		i = 0
	}
	return strings.Join(d.Pages[i:], "\n")
}

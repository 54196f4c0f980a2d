package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core"
)

const pdfContentType = "application/pdf"

var (
	_ core.DocumentExtractor = (*DocconvExtractor)(nil)
	_ core.DocumentExtractor = (*PlainPDFExtractor)(nil)
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// PDF conversion shells out to poppler's pdftotext.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) Version() string { return "docconv-1" }

// ExtractText converts the PDF at path to plain text. A PDF without a text
// layer yields "" and no error.
func (e *DocconvExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read raw file: %w", err)
	}

	res, err := docconv.Convert(bytes.NewReader(raw), pdfContentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", nil
	}
	return res.Body, nil
}

// PlainPDFExtractor reads the PDF text layer in pure Go, without external binaries.
type PlainPDFExtractor struct{}

func NewPlainPDFExtractor() *PlainPDFExtractor {
	return &PlainPDFExtractor{}
}

func (e *PlainPDFExtractor) Version() string { return "plainpdf-1" }

func (e *PlainPDFExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		buf.WriteString(text)
		buf.WriteString("\n\n")
	}

	// Scanned documents without a text layer yield "" and are still cached.
	if strings.TrimSpace(buf.String()) == "" {
		return "", nil
	}
	return buf.String(), nil
}

// NewExtractor picks the extractor named in configuration.
func NewExtractor(name string) (core.DocumentExtractor, error) {
	switch name {
	case config.ExtractorDocconv:
		return NewDocconvExtractor(false), nil
	case config.ExtractorPlain:
		return NewPlainPDFExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}

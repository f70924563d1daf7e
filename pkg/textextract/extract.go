package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Format string

const (
	FormatPDF  Format = "PDF"
	FormatDOCX Format = "DOCX"
	FormatTXT  Format = "TXT"
	FormatHTML Format = "HTML"
)

var ErrUnsupportedFormat = errors.New("unsupported file type")

type ExtractedText struct {
	Content  string
	Title    string
	Format   Format
	Pages    int
	Metadata map[string]string
}

// DetectFormat maps a MIME type, extension or bare type name to a Format.
func DetectFormat(fileType string) (Format, error) {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	if mt, _, err := mime.ParseMediaType(ft); err == nil {
		ft = mt
	}
	switch ft {
	case ".pdf", "pdf", "application/pdf":
		return FormatPDF, nil
	case ".docx", "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FormatDOCX, nil
	case ".txt", "txt", "text/plain", ".md", "md", "text/markdown":
		return FormatTXT, nil
	case ".html", ".htm", "html", "text/html", "application/xhtml+xml":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileType)
}

// DetectFromName falls back to the file extension when the MIME type is
// missing or generic.
func DetectFromName(mimeType, name string) (Format, error) {
	if f, err := DetectFormat(mimeType); err == nil {
		return f, nil
	}
	return DetectFormat(filepath.Ext(name))
}

func ExtractFormat(data io.ReaderAt, size int64, format Format) (*ExtractedText, error) {
	switch format {
	case FormatPDF:
		return extractPDF(data, size)
	case FormatDOCX:
		return extractDOCX(data, size)
	case FormatTXT:
		return extractTXT(data, size)
	case FormatHTML:
		return extractHTML(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n\n")
	}

	return &ExtractedText{
		Content: strings.TrimSpace(buf.String()),
		Format:  FormatPDF,
		Pages:   numPages,
		Metadata: map[string]string{
			"pages": strconv.Itoa(numPages),
		},
	}, nil
}

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()

		text, err := docxText(rc)
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		return &ExtractedText{
			Content: text,
			Format:  FormatDOCX,
			Pages:   1,
		}, nil
	}

	return nil, fmt.Errorf("open DOCX: word/document.xml not found")
}

// docxText keeps the text runs (w:t) and turns paragraph ends (w:p) into blank
// lines so the chunker can break on them.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	_, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}

	return &ExtractedText{
		Content: string(bytes.TrimSpace(buf)),
		Format:  FormatTXT,
		Pages:   1,
	}, nil
}

func extractHTML(data io.ReaderAt, size int64) (*ExtractedText, error) {
	page, err := ParseHTML(io.NewSectionReader(data, 0, size), nil)
	if err != nil {
		return nil, err
	}
	return &ExtractedText{
		Content: page.Text,
		Title:   page.Title,
		Format:  FormatHTML,
		Pages:   1,
	}, nil
}

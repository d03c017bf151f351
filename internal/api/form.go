package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

// Form is a multipart/form-data payload. Parts are buffered so the form can
// be encoded again when a request is retried after a credential refresh.
// The encoded body carries its own boundary; the pipeline never adds a JSON
// content type to it.
type Form struct {
	parts []formPart
}

type formPart struct {
	name     string
	filename string
	data     []byte
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// AddField appends a plain text field.
func (f *Form) AddField(name, value string) *Form {
	f.parts = append(f.parts, formPart{name: name, data: []byte(value)})
	return f
}

// AddFile appends a file part. The part's content type is guessed from the
// file extension, falling back to content sniffing.
func (f *Form) AddFile(name, filename string, data []byte) *Form {
	f.parts = append(f.parts, formPart{name: name, filename: filename, data: data})
	return f
}

// encode renders the form and returns the body and its Content-Type header
// value (including the boundary).
func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	for _, p := range f.parts {
		if p.filename == "" {
			if err := w.WriteField(p.name, string(p.data)); err != nil {
				return nil, "", fmt.Errorf("api: writing form field %q: %w", p.name, err)
			}

			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(p.name), escapeQuotes(filepath.Base(p.filename))))
		h.Set("Content-Type", partContentType(p.filename, p.data))

		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("api: creating form part %q: %w", p.name, err)
		}

		if _, err := pw.Write(p.data); err != nil {
			return nil, "", fmt.Errorf("api: writing form part %q: %w", p.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("api: closing form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func partContentType(filename string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}

	return http.DetectContentType(data)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

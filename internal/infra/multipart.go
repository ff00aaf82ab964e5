package infra

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

// File is an in-memory binary upload.
type File struct {
	Name        string
	ContentType string // sniffed from the extension when empty
	Data        []byte
}

// ReadFile loads a local file as an upload named after its base name.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return File{Name: filepath.Base(path), Data: data}, nil
}

// Multipart is a multipart/form-data body built in memory.
type Multipart struct {
	fields [][2]string
	files  []multipartFile
}

type multipartFile struct {
	field string
	file  File
}

// NewMultipart returns an empty form.
func NewMultipart() *Multipart { return &Multipart{} }

// Field adds a text field. Empty values are skipped.
func (m *Multipart) Field(name, value string) *Multipart {
	if value != "" {
		m.fields = append(m.fields, [2]string{name, value})
	}
	return m
}

// File adds a file part under field.
func (m *Multipart) File(field string, f File) *Multipart {
	m.files = append(m.files, multipartFile{field: field, file: f})
	return m
}

// Encode renders the form and returns its body and content type.
func (m *Multipart) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, kv := range m.fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("multipart: write field %s: %w", kv[0], err)
		}
	}
	for _, f := range m.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, filepath.Base(f.file.Name)))
		h.Set("Content-Type", contentTypeOf(f.file))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("multipart: create part %s: %w", f.field, err)
		}
		if _, err := part.Write(f.file.Data); err != nil {
			return nil, "", fmt.Errorf("multipart: write part %s: %w", f.field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func contentTypeOf(f File) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "audio/webm"
	}
	return "application/octet-stream"
}

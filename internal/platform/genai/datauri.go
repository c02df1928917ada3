package genai

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidDataURI = errors.New("expected a base64 data URI of the form data:<mimetype>;base64,<data>")

// Media is inline binary content with its MIME type.
type Media struct {
	MimeType string
	// Data holds the base64 encoded payload.
	Data string
}

// ParseDataURI parses "data:<mimetype>;base64,<data>". Only base64 encoded
// URIs with an explicit MIME type are accepted.
func ParseDataURI(uri string) (*Media, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return nil, ErrInvalidDataURI
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok || data == "" {
		return nil, ErrInvalidDataURI
	}
	mime, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" || !strings.Contains(mime, "/") {
		return nil, ErrInvalidDataURI
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return nil, ErrInvalidDataURI
	}
	return &Media{MimeType: strings.ToLower(mime), Data: data}, nil
}

// Bytes returns the decoded payload.
func (m *Media) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Data)
}

// URI formats m as a data URI.
func (m *Media) URI() string {
	return "data:" + m.MimeType + ";base64," + m.Data
}

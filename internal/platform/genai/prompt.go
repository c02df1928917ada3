package genai

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const mediaMarker = "\x00media\x00"

// Prompt is a text/template rendered into prompt parts. Inside the template
// {{media .SomeDataURI}} embeds an image at that position.
type Prompt struct {
	name string
	tmpl *template.Template
}

// NewPrompt parses a prompt template.
func NewPrompt(name, text string) (*Prompt, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"media": func(string) (string, error) { return "", nil }}).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Prompt{name: name, tmpl: tmpl}, nil
}

// MustPrompt is like NewPrompt but panics on a template error.
func MustPrompt(name, text string) *Prompt {
	p, err := NewPrompt(name, text)
	if err != nil {
		panic(err)
	}
	return p
}

// Render executes the template with data and splits the output into text
// and media parts in template order.
func (p *Prompt) Render(data any) ([]Part, error) {
	var media []*Media
	t, err := p.tmpl.Clone()
	if err != nil {
		return nil, err
	}
	t.Funcs(template.FuncMap{
		"media": func(uri string) (string, error) {
			m, err := ParseDataURI(uri)
			if err != nil {
				return "", err
			}
			media = append(media, m)
			return mediaMarker, nil
		},
	})

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render prompt %s: %w", p.name, err)
	}

	pieces := strings.Split(buf.String(), mediaMarker)
	parts := make([]Part, 0, len(pieces)+len(media))
	for i, text := range pieces {
		if strings.TrimSpace(text) != "" {
			parts = append(parts, Part{Text: text})
		}
		if i < len(media) {
			parts = append(parts, Part{Media: media[i]})
		}
	}
	return parts, nil
}

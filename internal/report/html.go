package report

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderHTML converts a Markdown report to an HTML fragment.
func RenderHTML(markdown string) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return buf.Bytes(), nil
}

// HTML renders the full report of a run as an HTML fragment.
func HTML(r *standardize.Result) ([]byte, error) {
	text, err := Markdown(r)
	if err != nil {
		return nil, err
	}
	return RenderHTML(text)
}

package report

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Renderer writes a report in a specific format.
type Renderer interface {
	// Format returns the format name (e.g. "text", "json", "html").
	Format() string

	// Render writes the formatted report to w. Rendering the same
	// report twice writes identical bytes.
	Render(ctx context.Context, rep *Report, w io.Writer) error
}

// New creates a renderer by format name, case-insensitively.
func New(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "text":
		return &TextRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "html":
		return &HTMLRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}

package report

import (
	"context"
	"encoding/json"
	"io"
)

// JSONRenderer outputs the structured report.
type JSONRenderer struct {
	// Compact outputs single-line JSON when true.
	Compact bool
}

// Format returns "json".
func (r *JSONRenderer) Format() string { return "json" }

// Render writes the report as JSON to w.
func (r *JSONRenderer) Render(ctx context.Context, rep *Report, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rep)
}

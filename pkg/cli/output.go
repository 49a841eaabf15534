package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormatter writes command results as text or JSON
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

// Result writes data as indented JSON, or text via the text callback
func (f *OutputFormatter) Result(data interface{}, text func(w io.Writer) error) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(f.Writer)
}

// line writes one formatted line
func line(w io.Writer, format string, args ...interface{}) error {
	_, err := fmt.Fprintf(w, format+"\n", args...)
	return err
}

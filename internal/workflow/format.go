package workflow

import (
	"fmt"

	"github.com/deixis/noopcheck/internal/report"
)

// FormatText renders findings in the human-readable warning format: a
// WARNING line, the unoptimized listing, the optimized listing and an
// end marker per finding, then a one-line summary if anything was found.
func FormatText(findings []report.Finding) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	for _, f := range findings {
		w("WARNING: %s\n", f.Summary())
		for _, line := range f.Unoptimized {
			w("%s\n", line)
		}
		w("vs optimized\n")
		for _, line := range f.Optimized {
			w("%s\n", line)
		}
		w("end\n")
	}
	if len(findings) > 0 {
		w("At least one function is a complicated no-op\n")
	}
	return string(b)
}

// Package report holds the results of noopcheck runs and keeps them
// around so a finding can be looked at again after the run returns.
package report

import (
	"fmt"
	"strings"
)

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult holds the outcome of checking one file.
type RunResult struct {
	ID        string    `json:"id"`
	File      string    `json:"file"`
	Binary    string    `json:"binary"`
	Functions int       `json:"functions"` // functions present in both dumps
	Truncated bool      `json:"truncated,omitempty"`
	Findings  []Finding `json:"findings,omitempty"`
}

// Finding is a function whose optimized form is a constant return while
// its unoptimized form still does work.
type Finding struct {
	Function    string   `json:"function"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Unoptimized []string `json:"unoptimized"`
	Optimized   []string `json:"optimized"`
}

// Summary returns the one-line warning for f.
func (f Finding) Summary() string {
	return fmt.Sprintf("%s returns a constant in a less than optimal way at %d:%d", f.Function, f.StartLine, f.EndLine)
}

// ByFunction returns the findings for a function name. Method names may be
// given as Class::method; the match is case-insensitive, as PHP's is.
func ByFunction(result *RunResult, name string) []Finding {
	var out []Finding
	for _, f := range result.Findings {
		if strings.EqualFold(f.Function, name) {
			out = append(out, f)
		}
	}
	return out
}

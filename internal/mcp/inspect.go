package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/noopcheck/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID    string `json:"run_id" jsonschema:"the run ID from a noop_check result"`
	Function string `json:"function" jsonschema:"function name as reported, e.g. answer or Foo::bar"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if params.Function == "" {
		return errorResult("function is required")
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	findings := report.ByFunction(result, params.Function)
	if len(findings) == 0 {
		return textResult(fmt.Sprintf("No findings for %s in run %s (%s).", params.Function, params.RunID, result.File))
	}

	return textResult(formatInspectOutput(result, findings))
}

func formatInspectOutput(rr *report.RunResult, findings []report.Finding) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "File: %s\n", rr.File)

	for _, f := range findings {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "%s (lines %d-%d)\n", f.Function, f.StartLine, f.EndLine)
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Unoptimized (%d instructions):\n", len(f.Unoptimized))
		for _, line := range f.Unoptimized {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		fmt.Fprintf(&b, "Optimized (%d instructions):\n", len(f.Optimized))
		for _, line := range f.Optimized {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	return b.String()
}

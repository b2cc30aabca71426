package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deixis/noopcheck/internal/report"
	"github.com/deixis/noopcheck/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type checkParams struct {
	Path string `json:"path" jsonschema:"path of the PHP file to check; relative paths resolve against the workspace root"`
}

func (h *handler) checkHandler(ctx context.Context, req *mcp.CallToolRequest, params checkParams) (*mcp.CallToolResult, any, error) {
	if params.Path == "" {
		return errorResult("path is required")
	}
	engine, workspace := h.current()

	path := params.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}

	result, err := engine.Check(ctx, path)
	if err != nil {
		var subErr *workflow.SubprocessError
		switch {
		case errors.Is(err, workflow.ErrInputNotFound):
			return errorResult(fmt.Sprintf("%s does not exist", params.Path))
		case errors.As(err, &subErr):
			return errorResult(fmt.Sprintf("php failed (%v):\n%s", subErr, subErr.Message))
		default:
			return errorResult(fmt.Sprintf("check failed: %v", err))
		}
	}

	// Save results for noop_inspect.
	_ = h.store.Save(result.RunResult)

	return textResult(formatCheck(result.RunResult))
}

func formatCheck(rr *report.RunResult) string {
	var b strings.Builder

	if len(rr.Findings) == 0 {
		fmt.Fprintln(&b, "Status: OK")
	} else {
		fmt.Fprintf(&b, "Status: %d findings\n", len(rr.Findings))
	}
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "File: %s\n", rr.File)
	fmt.Fprintf(&b, "Functions compared: %d\n", rr.Functions)
	if rr.Truncated {
		fmt.Fprintln(&b, "Note: the opcode listing was truncated; some functions were not compared.")
	}
	fmt.Fprintln(&b)

	if len(rr.Findings) == 0 {
		fmt.Fprintln(&b, "No function reduces to a constant return.")
		return b.String()
	}

	for _, f := range rr.Findings {
		fmt.Fprintf(&b, "WARNING: %s\n", f.Summary())
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Inspect with noop_inspect(run_id=%q, function=\"<name>\").\n", rr.ID)

	return b.String()
}

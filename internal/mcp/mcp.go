// Package mcp provides the noopcheck MCP server, registering its tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/noopcheck"
	"github.com/deixis/noopcheck/internal/config"
	"github.com/deixis/noopcheck/internal/report"
	"github.com/deixis/noopcheck/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu        sync.Mutex
	engine    *workflow.Engine
	workspace string
	store     report.Store
	php       string // binary override kept across config reloads
}

// NewServer creates an MCP server with all noopcheck tools registered.
// Relative paths given to the tools resolve against workspace.
func NewServer(engine *workflow.Engine, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		engine:    engine,
		workspace: workspace,
		store:     store,
		php:       so.php,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "noopcheck", Version: noopcheck.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "noop_check",
		Description: `Find PHP functions that the opcache optimizer reduces to a constant return.

Runs php twice in syntax-check mode (optimizer off, optimizer on) and compares the opcodes
of every function. Results are stored for drill-down via noop_inspect.`,
	}, h.checkHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "noop_inspect",
		Description: `Show the unoptimized and optimized opcodes of a function reported by noop_check.

Use the run_id from a noop_check result and the function name as printed (Class::method for methods).`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the noopcheck MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	php string
}

// WithPHP pins the php binary. It takes precedence over the php setting
// of any configuration loaded from a client root.
func WithPHP(binary string) ServerOption {
	return func(o *serverOptions) {
		o.php = binary
	}
}

// current returns the engine and workspace to use for one tool call.
func (h *handler) current() (*workflow.Engine, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine, h.workspace
}

// updateWorkspaceFromRoots queries the client for MCP roots and, if a
// file root is returned, reloads the configuration from it.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}
	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		log.Printf("ignoring root %s: %v", workspace, err)
		return
	}
	r, err := workflow.NewRunner(loaded.Config, h.php)
	if err != nil {
		log.Printf("ignoring root %s: %v", workspace, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r.Verbose = h.engine.Verbose
	h.engine = &workflow.Engine{Config: loaded.Config, Runner: r, Verbose: h.engine.Verbose}
	h.workspace = workspace
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

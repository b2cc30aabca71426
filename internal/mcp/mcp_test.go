package mcp

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/deixis/noopcheck/internal/config"
	"github.com/deixis/noopcheck/internal/report"
	"github.com/deixis/noopcheck/internal/runner"
	"github.com/deixis/noopcheck/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// dumpScript stands in for php: it prints the optimized listing from
// testdata when asked for the optimized dump and the unoptimized one
// otherwise, on stderr.
const dumpScript = `case "$*" in
*opt_debug_level=0x20000*) cat "$DIR/optimized.txt" >&2 ;;
*) cat "$DIR/unoptimized.txt" >&2 ;;
esac`

func fakePHP(t *testing.T, body string) string {
	t.Helper()
	testdata, err := filepath.Abs("testdata")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "php")
	script := "#!/bin/sh\nDIR='" + testdata + "'\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// setup creates a full noopcheck MCP server + client over in-memory
// transports, with a workspace holding answer.php.
func setup(t *testing.T, body string) (*mcp.ClientSession, string) {
	t.Helper()
	ctx := context.Background()

	workspace := t.TempDir()
	src := filepath.Join(workspace, "answer.php")
	if err := os.WriteFile(src, []byte("<?php\nfunction answer() { helper(); return 42; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Extension: runner.ExtensionNever}
	r, err := workflow.NewRunner(cfg, fakePHP(t, body))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	engine := &workflow.Engine{Config: cfg, Runner: r}
	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))

	server := NewServer(engine, store, workspace)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs, workspace
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var runIDRe = regexp.MustCompile(`(?m)^Run: (\S+)$`)

// runID extracts the run ID from a noop_check result.
func runID(t *testing.T, text string) string {
	t.Helper()
	m := runIDRe.FindStringSubmatch(text)
	if m == nil {
		t.Fatalf("no run ID in output:\n%s", text)
	}
	return m[1]
}

// --- noop_check ---

func TestNoopCheck_Findings(t *testing.T) {
	cs, workspace := setup(t, dumpScript)
	res := callTool(t, cs, "noop_check", map[string]any{"path": "answer.php"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{
		"Status: 1 findings",
		"File: " + filepath.Join(workspace, "answer.php"),
		"Functions compared: 3",
		"WARNING: answer returns a constant in a less than optimal way at 3:7",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
	runID(t, text)
}

func TestNoopCheck_AbsolutePath(t *testing.T) {
	cs, workspace := setup(t, dumpScript)
	res := callTool(t, cs, "noop_check", map[string]any{"path": filepath.Join(workspace, "answer.php")})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
}

func TestNoopCheck_Clean(t *testing.T) {
	// The unoptimized listing for both passes: nothing collapses.
	cs, _ := setup(t, `cat "$DIR/unoptimized.txt" >&2`)
	res := callTool(t, cs, "noop_check", map[string]any{"path": "answer.php"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Status: OK") {
		t.Errorf("expected Status: OK, got:\n%s", text)
	}
	if strings.Contains(text, "WARNING") {
		t.Errorf("unexpected warning in output:\n%s", text)
	}
}

func TestNoopCheck_MissingPath(t *testing.T) {
	cs, _ := setup(t, dumpScript)
	res := callTool(t, cs, "noop_check", map[string]any{"path": ""})
	if !res.IsError {
		t.Errorf("expected error for empty path, got:\n%s", resultText(res))
	}
}

func TestNoopCheck_FileNotFound(t *testing.T) {
	cs, _ := setup(t, dumpScript)
	res := callTool(t, cs, "noop_check", map[string]any{"path": "missing.php"})
	text := resultText(res)
	if !res.IsError {
		t.Fatalf("expected error, got:\n%s", text)
	}
	if !strings.Contains(text, "missing.php does not exist") {
		t.Errorf("unexpected error text:\n%s", text)
	}
}

func TestNoopCheck_PHPFailure(t *testing.T) {
	cs, _ := setup(t, `echo "PHP Parse error: syntax error in answer.php on line 2" >&2; exit 255`)
	res := callTool(t, cs, "noop_check", map[string]any{"path": "answer.php"})
	text := resultText(res)
	if !res.IsError {
		t.Fatalf("expected error, got:\n%s", text)
	}
	if !strings.Contains(text, "syntax error") {
		t.Errorf("expected php message in error, got:\n%s", text)
	}
}

func TestNoopCheck_RootKeepsPHPOverride(t *testing.T) {
	ctx := context.Background()

	// The root's config names a php that always fails.
	root := t.TempDir()
	wrongPHP := filepath.Join(root, "wrong-php")
	if err := os.WriteFile(wrongPHP, []byte("#!/bin/sh\necho 'wrong php' >&2; exit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfgText := "php: " + wrongPHP + "\nextension: never\n"
	if err := os.WriteFile(filepath.Join(root, ".noopcheck"), []byte(cfgText), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "answer.php"), []byte("<?php\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	php := fakePHP(t, dumpScript)
	cfg := &config.Config{Extension: runner.ExtensionNever}
	r, err := workflow.NewRunner(cfg, php)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	engine := &workflow.Engine{Config: cfg, Runner: r}
	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	server := NewServer(engine, store, t.TempDir(), WithPHP(php))

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	client.AddRoots(&mcp.Root{URI: "file://" + filepath.ToSlash(root)})
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	// answer.php only exists under the root, so the check resolves once
	// the root has been applied.
	deadline := time.Now().Add(5 * time.Second)
	for {
		res := callTool(t, cs, "noop_check", map[string]any{"path": "answer.php"})
		text := resultText(res)
		if !strings.Contains(text, "does not exist") {
			if res.IsError {
				t.Fatalf("unexpected error after root reload: %s", text)
			}
			if !strings.Contains(text, "WARNING: answer ") {
				t.Errorf("expected the pinned php to run, got:\n%s", text)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("root was never applied:\n%s", text)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// --- noop_inspect ---

func TestNoopInspect(t *testing.T) {
	cs, _ := setup(t, dumpScript)
	id := runID(t, resultText(callTool(t, cs, "noop_check", map[string]any{"path": "answer.php"})))

	res := callTool(t, cs, "noop_inspect", map[string]any{"run_id": id, "function": "answer"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{
		"answer (lines 3-7)",
		"Unoptimized (4 instructions):",
		"INIT_FCALL",
		"Optimized (1 instructions):",
		"RETURN int(42)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestNoopInspect_CaseInsensitive(t *testing.T) {
	cs, _ := setup(t, dumpScript)
	id := runID(t, resultText(callTool(t, cs, "noop_check", map[string]any{"path": "answer.php"})))

	res := callTool(t, cs, "noop_inspect", map[string]any{"run_id": id, "function": "ANSWER"})
	if !strings.Contains(resultText(res), "answer (lines 3-7)") {
		t.Errorf("expected case-insensitive match, got:\n%s", resultText(res))
	}
}

func TestNoopInspect_NoFindings(t *testing.T) {
	cs, _ := setup(t, dumpScript)
	id := runID(t, resultText(callTool(t, cs, "noop_check", map[string]any{"path": "answer.php"})))

	res := callTool(t, cs, "noop_inspect", map[string]any{"run_id": id, "function": "helper"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "No findings for helper") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestNoopInspect_UnknownRun(t *testing.T) {
	cs, _ := setup(t, dumpScript)
	res := callTool(t, cs, "noop_inspect", map[string]any{"run_id": "nonexistent", "function": "answer"})
	if !res.IsError {
		t.Errorf("expected error for unknown run, got:\n%s", resultText(res))
	}
}

func TestNoopInspect_MissingParams(t *testing.T) {
	cs, _ := setup(t, dumpScript)
	if res := callTool(t, cs, "noop_inspect", map[string]any{"function": "answer"}); !res.IsError {
		t.Error("expected error for missing run_id")
	}
	if res := callTool(t, cs, "noop_inspect", map[string]any{"run_id": "x"}); !res.IsError {
		t.Error("expected error for missing function")
	}
}

func TestInstructionsEmbedded(t *testing.T) {
	for _, tool := range []string{"noop_check", "noop_inspect"} {
		if !strings.Contains(Instructions, tool) {
			t.Errorf("instructions do not mention %s", tool)
		}
	}
}

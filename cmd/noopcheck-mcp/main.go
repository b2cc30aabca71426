// Command noopcheck-mcp serves the noopcheck tools over MCP, on stdio by
// default or over streamable HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/deixis/noopcheck"
	"github.com/deixis/noopcheck/internal/config"
	noopmcp "github.com/deixis/noopcheck/internal/mcp"
	"github.com/deixis/noopcheck/internal/report"
	"github.com/deixis/noopcheck/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("noopcheck-mcp: ")

	instructions := flag.Bool("instructions", false, "print model instructions and exit")
	version := flag.Bool("version", false, "print the version and exit")
	httpAddr := flag.String("http", "", "start HTTP server on address (e.g. :9090)")
	phpFlag := flag.String("php", "", "php binary to run")
	verbose := flag.Bool("v", false, "verbose output")
	flag.Parse()

	switch {
	case *instructions:
		fmt.Print(noopmcp.Instructions)
		return
	case *version:
		fmt.Println(noopcheck.Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := serve(ctx, *httpAddr, *phpFlag, *verbose); err != nil {
		log.Fatal(err)
	}
}

func serve(ctx context.Context, httpAddr, php string, verbose bool) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	r, err := workflow.NewRunner(cfg, php)
	if err != nil {
		return err
	}
	r.Verbose = verbose

	disk := report.NewDiskStore("")
	store := report.NewLRUStore(16, disk)

	engine := &workflow.Engine{Config: cfg, Runner: r, Verbose: verbose}
	var opts []noopmcp.ServerOption
	if php != "" {
		opts = append(opts, noopmcp.WithPHP(php))
	}
	server := noopmcp.NewServer(engine, store, workspace, opts...)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

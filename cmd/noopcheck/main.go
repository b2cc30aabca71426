// Command noopcheck reports PHP functions that do work the opcache
// optimizer proves irrelevant: functions that reduce to a constant return.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/deixis/noopcheck"
	"github.com/deixis/noopcheck/internal/config"
	"github.com/deixis/noopcheck/internal/workflow"
)

const (
	exitOK         = 0
	exitUsage      = 1
	exitNotFound   = 2
	exitSubprocess = 3
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("noopcheck: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: noopcheck path/to/file_to_analyze.php")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)

	flags := flag.NewFlagSet("noopcheck", flag.ContinueOnError)
	flags.SetOutput(stderr)
	jsonFlag := flags.Bool("json", false, "output results as JSON")
	verboseFlag := flags.Bool("v", false, "verbose output")
	timeoutFlag := flags.Duration("timeout", 0, "override configured timeout (e.g. 5m)")
	phpFlag := flags.String("php", "", "php binary to run")
	concurrentFlag := flags.Bool("concurrent", false, "run both dumps at the same time")
	versionFlag := flags.Bool("version", false, "print the version and exit")
	flags.Usage = func() {
		usage(stderr)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *versionFlag {
		fmt.Fprintln(stdout, noopcheck.Version)
		return exitOK
	}

	if flags.NArg() != 1 {
		usage(stdout)
		return exitUsage
	}
	file := flags.Arg(0)

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "%s does not exist\n", file)
		return exitNotFound
	} else if err != nil {
		fmt.Fprintf(stderr, "Saw error\n%v\n", err)
		return exitSubprocess
	}

	loaded, err := config.Load(filepath.Dir(file))
	if err != nil {
		log.Printf("loading config: %v", err)
		return exitUsage
	}
	cfg := loaded.Config
	if *verboseFlag && loaded.Path != "" {
		log.Printf("using config %s", loaded.Path)
	}
	if *concurrentFlag {
		cfg.Concurrent = true
	}

	r, err := workflow.NewRunner(cfg, *phpFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Saw error\n%v\n", err)
		return exitSubprocess
	}
	if *timeoutFlag > 0 {
		r.Timeout = *timeoutFlag
	}
	r.Verbose = *verboseFlag

	eng := &workflow.Engine{
		Config:  cfg,
		Runner:  r,
		Verbose: *verboseFlag,
	}

	result, err := eng.Check(ctx, file)
	if err != nil {
		var subErr *workflow.SubprocessError
		switch {
		case errors.Is(err, workflow.ErrInputNotFound):
			fmt.Fprintf(stderr, "%s does not exist\n", file)
			return exitNotFound
		case errors.As(err, &subErr):
			fmt.Fprintf(stderr, "Saw error\n%s\n", subErr.Message)
			return exitSubprocess
		default:
			fmt.Fprintf(stderr, "Saw error\n%v\n", err)
			return exitSubprocess
		}
	}

	if *jsonFlag {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.RunResult); err != nil {
			log.Print(err)
			return exitUsage
		}
		return exitOK
	}

	fmt.Fprint(stdout, workflow.FormatText(result.RunResult.Findings))
	return exitOK
}

// Command tollctl scores toll batches and stages raw files from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/opensource-finance/tollwatch/internal/bus"
	"github.com/opensource-finance/tollwatch/internal/config"
	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/export"
	"github.com/opensource-finance/tollwatch/internal/filename"
	"github.com/opensource-finance/tollwatch/internal/ingest"
	"github.com/opensource-finance/tollwatch/internal/intake"
	"github.com/opensource-finance/tollwatch/internal/pipeline"
	"github.com/opensource-finance/tollwatch/internal/storage"
)

const usage = `usage: tollctl <command> [flags]

commands:
  score -in FILE [-out FILE]          score a batch locally and print its summary
  normalize NAME...                   print the period resolved from each file name
  intake [-dir DIR] [-interim DIR]    stage inbox files into the object store
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 1
	}
	logger := config.NewLogger(domain.LoggingConfig{Level: cfg.Logging.Level, Format: "text"}, stderr)

	var cmdErr error
	switch args[0] {
	case "score":
		cmdErr = score(ctx, cfg, args[1:], stdout, stderr)
	case "normalize":
		cmdErr = normalize(args[1:], stdout)
	case "intake":
		cmdErr = runIntake(ctx, cfg, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if cmdErr != nil {
		if errors.Is(cmdErr, flag.ErrHelp) {
			return 2
		}
		logger.Error(args[0]+" failed", "error", cmdErr)
		return 1
	}
	return 0
}

func score(ctx context.Context, cfg *domain.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "CSV or XLSX batch to score")
	out := fs.String("out", "", "write the annotated batch as CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	p, err := pipeline.FromConfig(cfg.Scoring)
	if err != nil {
		return err
	}
	batch, err := ingest.NewService(p, nil).Ingest(ctx, *in, data)
	if err != nil {
		return err
	}

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if err := export.WriteCSV(f, batch.Records); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		BatchID string         `json:"batchId"`
		Period  string         `json:"period"`
		Summary domain.Summary `json:"summary"`
	}{batch.ID, batch.Period.Token(), batch.Summary})
}

func normalize(names []string, stdout io.Writer) error {
	if len(names) == 0 {
		return fmt.Errorf("at least one file name is required")
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPERIOD\tSOURCE\tFALLBACK")
	n := filename.NewNormalizer()
	for _, name := range names {
		p := n.Normalize(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", name, p.Token(), p.Source, p.Fallback())
	}
	return tw.Flush()
}

func runIntake(ctx context.Context, cfg *domain.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("intake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", cfg.Storage.InboxDir, "inbox directory to scan")
	interim := fs.String("interim", cfg.Storage.InterimDir, "directory for renamed copies")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	// A channel bus has no listener outside the server process.
	var eventBus domain.EventBus
	if cfg.EventBus.Type == "nats" {
		if eventBus, err = bus.New(cfg.EventBus); err != nil {
			return err
		}
		defer eventBus.Close()
	}

	storageCfg := cfg.Storage
	storageCfg.InterimDir = *interim
	results, err := intake.New(store, eventBus, storageCfg).Run(ctx, *dir)
	if err != nil {
		return err
	}

	failed := 0
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tOBJECT\tFALLBACK\tERROR")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", r.Original, r.Object, r.Fallback(), errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

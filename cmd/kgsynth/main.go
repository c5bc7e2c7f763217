// Command kgsynth runs the triple synthesis pipeline over the context column
// of an Excel workbook.
//
// Usage:
//
//	go run -tags sqlite_fts5 ./cmd/kgsynth --config kgsynth.json --input data.xlsx
//	go run -tags sqlite_fts5 ./cmd/kgsynth --input data.xlsx \
//	  --table output.xlsx --rte rte_output.json --kgc kgc_output.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brunobiangulo/kgsynth"
	"github.com/joho/godotenv"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (JSON)")
		input      = flag.String("input", "", "Input workbook (default: batch.input_path)")
		tablePath  = flag.String("table", "", "Output workbook (default: output.table_path)")
		rtePath    = flag.String("rte", "", "RTE JSON output (default: output.rte_path)")
		kgcPath    = flag.String("kgc", "", "KGC JSON output (default: output.kgc_path)")
		column     = flag.String("column", "", "Context column header (default: batch.context_column)")
		retrieval  = flag.String("retrieval", "", "Retrieval mode: command, corpus, passthrough")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		jsonOut    = flag.Bool("json", false, "Print the run summary as JSON")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := kgsynth.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	applyOverrides(&cfg, overrides{
		table:     *tablePath,
		rte:       *rtePath,
		kgc:       *kgcPath,
		column:    *column,
		retrieval: *retrieval,
	})

	pipeline, err := kgsynth.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := pipeline.RunFile(ctx, *input)
	if sum != nil {
		if *jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(sum)
		} else {
			fmt.Printf("run %s: %d rows, %d ok, %d skipped, %d failed, %d resumed, %d records in %s\n",
				sum.RunID, sum.Rows, sum.OK, sum.Skipped, sum.Failed, sum.Resumed, sum.Records, sum.Elapsed.Round(time.Millisecond))
		}
	}
	if err != nil {
		slog.Error("run failed", "error", err)
		pipeline.Close()
		os.Exit(1)
	}
}

// overrides are the command-line settings that replace config values when
// set.
type overrides struct {
	table, rte, kgc   string
	column, retrieval string
}

func applyOverrides(cfg *kgsynth.Config, o overrides) {
	if o.table != "" {
		cfg.Output.TablePath = o.table
	}
	if o.rte != "" {
		cfg.Output.RTEPath = o.rte
	}
	if o.kgc != "" {
		cfg.Output.KGCPath = o.kgc
	}
	if o.column != "" {
		cfg.Batch.ContextColumn = o.column
	}
	if o.retrieval != "" {
		cfg.Retrieval.Mode = strings.ToLower(o.retrieval)
	}
}

// Command eval re-scores generated KGC and RTE datasets with an LLM judge.
//
// Usage:
//
//	go run -tags sqlite_fts5 ./cmd/eval \
//	  --kgc ./output/kgc_output.json \
//	  --rte ./output/rte_output.json \
//	  --judge-provider groq \
//	  --judge-model openai/gpt-oss-120b \
//	  --out ./output
//
// Without --judge-provider the chat endpoint of the config file is the judge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/kgsynth"
	"github.com/brunobiangulo/kgsynth/eval"
	"github.com/joho/godotenv"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to config file (JSON)")
		kgcPath       = flag.String("kgc", "", "Path to the KGC dataset (default: output.kgc_path)")
		rtePath       = flag.String("rte", "", "Path to the RTE dataset (default: output.rte_path)")
		outDir        = flag.String("out", ".", "Directory for kgc_results.json and rte_results.json")
		judgeProvider = flag.String("judge-provider", "", "Judge LLM provider (default: judge or chat from config)")
		judgeModel    = flag.String("judge-model", "", "Judge model name")
		judgeBaseURL  = flag.String("judge-base-url", "", "Judge provider base URL override")
		judgeAPIKey   = flag.String("judge-api-key", "", "Judge provider API key (default: from env)")
		verbose       = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := kgsynth.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *judgeProvider != "" {
		cfg.Judge = kgsynth.LLMConfig{
			Provider: *judgeProvider,
			Model:    *judgeModel,
			BaseURL:  *judgeBaseURL,
			APIKey:   *judgeAPIKey,
		}
	}
	if cfg.Judge.APIKey == "" {
		switch cfg.Judge.Provider {
		case "openai":
			cfg.Judge.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			cfg.Judge.APIKey = os.Getenv("GROQ_API_KEY")
		case "gemini":
			cfg.Judge.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openrouter":
			cfg.Judge.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
	}
	if *kgcPath == "" {
		*kgcPath = cfg.Output.KGCPath
	}
	if *rtePath == "" {
		*rtePath = cfg.Output.RTEPath
	}

	judge, model, err := cfg.NewJudge()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := eval.NewEvaluator(judge, model).Run(ctx, *kgcPath, *rtePath)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	if err := eval.WriteResults(*outDir, report); err != nil {
		log.Fatalf("writing results: %v", err)
	}

	fmt.Print(eval.FormatReport(report))
	slog.Info("eval: done",
		"kgc", report.KGC.Metrics.Total,
		"rte", report.RTE.Metrics.Total,
		"tokens", report.KGC.TokenUsage.TotalTokens+report.RTE.TokenUsage.TotalTokens,
		"elapsed", time.Since(start).Round(time.Second))
}

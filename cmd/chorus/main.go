// Command chorus fans a question out to the AI chat tabs open in a running
// browser, collects each engine's answer once it stops changing, and hands
// the lot to an external model for a cross-engine synthesis.
//
// Usage:
//
//	chorus -ask "why is the sky blue"   # open prompt-prefilled engine tabs
//	chorus -collect                     # harvest answers from open tabs
//	chorus -history 10                  # list recent runs
//
// The browser must be started with --remote-debugging-port; chorus never
// launches or closes it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"chorus/browser"
	"chorus/collect"
	"chorus/engine"
	"chorus/runstore"
	"chorus/synth"
)

func main() {
	configPath := flag.String("config", "", "path to chorus.yaml config file")
	ask := flag.String("ask", "", "submit a prompt to every engine that supports URL prefill")
	doCollect := flag.Bool("collect", false, "collect answers from the open engine tabs")
	history := flag.Int("history", 0, "list the N most recent runs")
	control := flag.String("control", "", "browser debugging endpoint (overrides config)")
	outDir := flag.String("out", "", "run output directory (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("chorus: fatal", "error", err)
		os.Exit(1)
	}
	if *control != "" {
		cfg.ControlURL = *control
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}

	if err := run(ctx, logger, cfg, *ask, *doCollect, *history); err != nil {
		logger.Error("chorus: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *Config, ask string, doCollect bool, history int) error {
	switch {
	case ask != "":
		return runAsk(ctx, logger, cfg, ask)
	case doCollect:
		return runCollect(ctx, logger, cfg)
	case history > 0:
		return runHistory(ctx, cfg, history)
	}

	fmt.Fprintln(os.Stderr, `usage: chorus -ask "prompt" | -collect | -history <n>`)
	os.Exit(1)
	return nil
}

func registry(cfg *Config) (*engine.Registry, error) {
	if cfg.EnginesFile == "" {
		return engine.Default(), nil
	}
	return engine.LoadFile(cfg.EnginesFile)
}

func runAsk(ctx context.Context, logger *slog.Logger, cfg *Config, query string) error {
	reg, err := registry(cfg)
	if err != nil {
		return err
	}

	client, err := browser.Connect(ctx, browser.Config{ControlURL: cfg.ControlURL, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	sub := collect.NewSubmitter(reg, collect.WrapClient(client), logger)
	results, err := sub.Submit(ctx, query)
	if err != nil {
		return err
	}

	for _, res := range results {
		switch {
		case res.Err != nil:
			fmt.Printf("%-12s error: %v\n", res.Slug, res.Err)
		case res.Activated:
			fmt.Printf("%-12s submitted\n", res.Slug)
		default:
			fmt.Printf("%-12s opened\n", res.Slug)
		}
	}
	fmt.Println("\nwait for the answers to finish, then run: chorus -collect")
	return nil
}

func runCollect(ctx context.Context, logger *slog.Logger, cfg *Config) error {
	reg, err := registry(cfg)
	if err != nil {
		return err
	}

	client, err := browser.Connect(ctx, browser.Config{ControlURL: cfg.ControlURL, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	index, err := runstore.OpenIndex(filepath.Join(cfg.OutDir, "chorus.db"))
	if err != nil {
		// The index is history, not the run; collection proceeds without it.
		logger.Warn("chorus: run index unavailable", "error", err)
		index = nil
	} else {
		defer index.Close()
	}

	var synthesizer *synth.Synthesizer
	if !cfg.Synthesis.Disabled {
		sc := cfg.synthConfig()
		sc.Logger = logger
		synthesizer = synth.New(sc)
	}

	var sinks []collect.Sink
	if cfg.Events.Stdout {
		sinks = append(sinks, collect.NewStdoutSink(nil))
	}
	if cfg.Events.WebhookURL != "" {
		sinks = append(sinks, collect.NewWebhookSink(cfg.Events.WebhookURL))
	}

	p := collect.NewPipeline(collect.Config{
		Registry:            reg,
		Store:               &runstore.Store{Root: cfg.OutDir},
		Index:               index,
		Synthesizer:         synthesizer,
		Poll:                cfg.pollPolicy(),
		MinSynthesisAnswers: cfg.Synthesis.MinAnswers,
		Report:              printReport,
		Logger:              logger,
	}, collect.WrapClient(client), sinks...)
	defer p.Close()

	_, err = p.Run(ctx)
	return err
}

// printReport is the human-facing summary on stdout; structured progress
// goes through the event sinks instead.
func printReport(run *collect.Run) {
	fmt.Printf("\nrun %s\nquery: %s\n\n", run.FolderID, run.Query)
	for _, res := range run.Results {
		fmt.Printf("  %-12s %-16s %6d chars\n", res.Slug, res.Status, res.CharCount)
	}
	if run.Synthesis != nil {
		fmt.Printf("\nsynthesis: %s\n", filepath.Join(run.Dir, "synthesis.md"))
	} else {
		fmt.Println("\nsynthesis: none")
	}
}

func runHistory(ctx context.Context, cfg *Config, n int) error {
	index, err := runstore.OpenIndex(filepath.Join(cfg.OutDir, "chorus.db"))
	if err != nil {
		return err
	}
	defer index.Close()

	runs, err := index.Recent(ctx, n)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, r := range runs {
		mark := " "
		if r.Synthesized {
			mark = "S"
		}
		fmt.Printf("%s  %s  %d/%d %s  %s\n",
			r.StartedAt.Format(time.RFC3339), mark,
			r.EnginesOK, r.EnginesTotal, r.FolderID, truncate(r.Query, 60))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

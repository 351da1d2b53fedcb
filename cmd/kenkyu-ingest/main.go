// kenkyu-ingest indexes a directory of extracted documents into the vector
// index the server retrieves from.
//
// Usage:
//
//	kenkyu-ingest -dir ./docs [-replace] [-config kenkyu.yaml]
//
// Files ending in .txt or .md are read. Form feeds split pages, so
// "report.pdf.txt" extracted with page breaks cites as [Source: report.pdf, page: N].
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kenkyu"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "", "directory of .txt/.md documents to index (required)")
	replace := flag.Bool("replace", false, "drop each document's existing chunks before indexing it")
	configFile := flag.String("config", "", "YAML config file (default: KENKYU_CONFIG or ./kenkyu.yaml)")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		return fmt.Errorf("-dir is required")
	}
	info, err := os.Stat(*dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", *dir)
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []kenkyu.Option{kenkyu.WithLogger(logger)}
	if *configFile != "" {
		opts = append(opts, kenkyu.WithConfigFile(*configFile))
	}
	stats, err := kenkyu.Ingest(ctx, os.DirFS(*dir), ".", *replace, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d documents (%d pages, %d chunks)\n", stats.Documents, stats.Pages, stats.Chunks)
	return nil
}

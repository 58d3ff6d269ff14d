package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"dutch_auction/internal/audit"
	"dutch_auction/internal/infra"
)

// Offline WAL inspection: lists every recorded message, then replays the log
// and prints the state it produces.
func main() {
	dbPath := flag.String("db", "", "path to the events.db WAL")
	configPath := flag.String("config", "", "node config (defaults to the usual lookup)")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: walaudit -db <events.db> [-config <config.yaml>]")
		os.Exit(2)
	}

	path := *configPath
	if path == "" {
		path = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	auctionCfg, owner, err := cfg.AuctionConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid auction config: %v\n", err)
		os.Exit(1)
	}

	replayer, err := audit.NewReplayer(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open WAL: %v\n", err)
		os.Exit(1)
	}
	defer replayer.Close()

	ctx := context.Background()

	summaries, err := replayer.Summarize(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read WAL: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== WAL: %d messages ===\n", len(summaries))
	fmt.Printf("%6s  %-15s  %-14s  %-20s  %s\n", "seq", "kind", "ts", "source", "value")
	for _, s := range summaries {
		value := ""
		if s.Kind == "BUY" {
			value = s.Value.String()
		}
		fmt.Printf("%6d  %-15s  %-14d  %-20s  %s\n", s.Seq, s.Kind, s.Ts, s.Source, value)
	}

	state, nextSeq, err := replayer.Rebuild(ctx, owner, auctionCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Replayed state (next seq %d) ===\n", nextSeq)
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render state: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

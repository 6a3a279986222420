package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OuterWinnie/Goodreads-Bot/internal/announce"
	"github.com/OuterWinnie/Goodreads-Bot/internal/config"
	"github.com/OuterWinnie/Goodreads-Bot/internal/freshness"
	"github.com/OuterWinnie/Goodreads-Bot/internal/profile"
	"github.com/OuterWinnie/Goodreads-Bot/internal/rss"
	"github.com/OuterWinnie/Goodreads-Bot/internal/service"
	"github.com/OuterWinnie/Goodreads-Bot/internal/state"
)

var logger = log.New(os.Stderr, "[goodreadsbot] ", log.LstdFlags)

var rootCmd = &cobra.Command{
	Use:   "goodreadsbot",
	Short: "Scrapes book reviews from updates feeds and profile pages.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Polls the configured feeds and serves the status endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, closeFn := build(ctx, config.Load())
		defer closeFn()

		if err := svc.Run(ctx); err != nil {
			logger.Fatalf("service stopped with error: %v", err)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Runs one feed cycle and prints the reviews as JSON.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		svc, closeFn := build(ctx, config.Load())
		defer closeFn()

		printJSON(svc.Check(ctx))
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile [url]",
	Short: "Extracts the reviews of a profile page and prints them as JSON.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if len(args) == 1 {
			cfg.ProfileURL = args[0]
		}
		if cfg.ProfileURL == "" {
			logger.Fatalf("no profile url given and PROFILE_URL is not set")
		}
		extractor := profile.NewExtractor(cfg.HTTPTimeout, logger, cfg.Debug)
		records, err := extractor.Extract(context.Background(), cfg.ProfileURL)
		if err != nil {
			logger.Fatalf("failed to extract profile: %v", err)
		}
		printJSON(records)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, checkCmd, profileCmd)
}

func build(ctx context.Context, cfg config.Config) (*service.Service, func()) {
	if len(cfg.UserIDs) == 0 {
		logger.Println("warning: USER_IDS is not set, the feed path has nothing to check")
	}
	if cfg.OpenAIKey == "" {
		logger.Println("OPENAI_API_KEY is not set, announcements use the plain template")
	}

	store, err := state.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init state store: %v", err)
	}
	filter, err := freshness.NewFilter(store, cfg.Timezone, logger, cfg.Debug)
	if err != nil {
		_ = store.Close()
		logger.Fatalf("failed to init freshness filter: %v", err)
	}

	fetcher := rss.NewFetcher(cfg.FeedBaseURL, cfg.HTTPTimeout, logger)
	extractor := profile.NewExtractor(cfg.HTTPTimeout, logger, cfg.Debug)
	composer := announce.NewClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBase, logger)

	svc := service.NewService(fetcher, extractor, filter, composer, logger, cfg)
	return svc, func() { _ = store.Close() }
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Fatalf("failed to write output: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command harvester runs the Spotify artist-catalog crawler described in
// SPEC_FULL.md: it seeds a small set of endpoints and traverses the
// artist/genre/recommendation/category graph until the configured number of
// unique artists has been written to artists.csv.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/cache"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/config"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/crawler"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/writer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var envPath string

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Crawl the Spotify catalog graph and harvest artist metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			csvFlag := cfg.CSVPath
			if err := cfg.ApplyEnv(envPath); err != nil {
				return err
			}
			if cmd.Flags().Changed("csv") {
				cfg.CSVPath = csvFlag
			}
			return run(context.Background(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&cfg.MaxNumArtists, "max-num-artists", "n", cfg.MaxNumArtists, "maximum number of unique artists to harvest")
	flags.IntVarP(&cfg.NumWorkers, "num-workers", "w", cfg.NumWorkers, "number of concurrent crawl workers")
	flags.BoolVarP(&cfg.Fresh, "fresh", "f", cfg.Fresh, "clear the cache and CSV output before starting")
	flags.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "enable verbose debug logging")
	flags.StringVar(&cfg.CredsPath, "creds", cfg.CredsPath, "path to the client_id/client_secret JSON document")
	flags.StringVar(&cfg.CSVPath, "csv", cfg.CSVPath, "path to the artist CSV output file")
	flags.StringVar(&envPath, "env", ".env", "optional .env file with operational overrides")

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	creds, err := config.LoadCredentials(cfg.CredsPath)
	if err != nil {
		logger.Fatal("failed to load credentials", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheClient, err := cache.New(ctx, cache.Config{Addr: cfg.CacheAddr, DB: cfg.CacheDB}, cfg.Fresh)
	if err != nil {
		logger.Fatal("failed to connect to cache", zap.Error(err))
	}
	defer cacheClient.Close()

	artistWriter, err := writer.New(cfg.CSVPath, cfg.Fresh)
	if err != nil {
		logger.Fatal("failed to open artist CSV", zap.Error(err))
	}
	defer artistWriter.Close()

	httpClient := spotify.NewClient(creds, cfg.HTTPTimeout)

	orch := crawler.New(crawler.Config{
		MaxNumArtists: cfg.MaxNumArtists,
		NumWorkers:    cfg.NumWorkers,
		RateLimitCap:  5,
		BackoffCap:    1800 * time.Second,
	}, logger, httpClient, cacheClient, artistWriter)

	logger.Info("starting crawl",
		zap.Int("max_num_artists", cfg.MaxNumArtists),
		zap.Int("num_workers", cfg.NumWorkers),
		zap.Bool("fresh", cfg.Fresh),
	)

	if err := orch.Run(ctx, seedEndpoints()); err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	logger.Info("crawl complete")
	return nil
}

// seedEndpoints is the small set of seed endpoints the crawl starts from
// (spec §2 "Seed endpoints enter the primary queue").
func seedEndpoints() []spotify.Endpoint {
	return []spotify.Endpoint{
		spotify.NewEndpoint("/recommendations/available-genre-seeds", nil, spotify.RouteGenreSeeds),
		spotify.NewEndpoint("/browse/categories", map[string]string{"limit": "50"}, spotify.RouteCategories),
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

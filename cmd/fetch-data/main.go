package main

import (
	"context"
	"flag"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"mtgdata/internal/archive"
	"mtgdata/internal/logger"
	"mtgdata/pkg/utils"
)

// fetch-data populates the data directory without starting a server.
func main() {
	var (
		skipSymbols = flag.Bool("skip-symbols", false, "do not refresh the mana symbol list")
		onlyIfNewer = flag.Bool("if-newer", false, "skip the card archive when the local copy is up to date")
	)
	flag.Parse()

	cfg, err := utils.LoadConfig()
	if err != nil {
		l := logger.New(logger.Config{})
		l.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DownloadTimeout)
	defer cancel()

	client := archive.NewClient(archive.ConfigFrom(cfg), logger.Component(log, "archive"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if *onlyIfNewer && upToDate(ctx, client) {
			log.Info().Msg("local card data is up to date")
			return nil
		}
		res, err := client.DownloadCardData(ctx)
		if err != nil {
			return err
		}
		log.Info().Strs("files", res.Files).Int64("bytes", res.Bytes).Msg("card data ready")
		return nil
	})
	if !*skipSymbols {
		g.Go(func() error {
			return client.DownloadSymbols(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("fetch failed")
		cancel()
		os.Exit(1)
	}
	log.Info().Str("dir", cfg.DataDir).Msg("data directory populated")
}

func upToDate(ctx context.Context, c *archive.Client) bool {
	local := c.LocalLastModified()
	if local == nil {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	remote, err := c.RemoteLastModified(checkCtx)
	if err != nil || remote == nil {
		return false
	}
	return !remote.After(*local)
}

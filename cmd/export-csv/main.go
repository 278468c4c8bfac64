package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mtgdata/internal/loader"
	"mtgdata/internal/logger"
	"mtgdata/pkg/database"
	"mtgdata/pkg/models"
	"mtgdata/pkg/utils"
)

func main() {
	var (
		setsOut   = flag.String("sets", "data/sets.csv", "output CSV path for sets")
		cardsOut  = flag.String("cards", "data/cards.csv", "output CSV path for cards")
		providers = flag.String("providers", "tcgplayer,cardkingdom,cardmarket", "comma-separated price providers to export")
	)
	flag.Parse()

	cfg, err := utils.LoadConfig()
	if err != nil {
		l := logger.New(logger.Config{})
		l.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if err := run(cfg, log, *setsOut, *cardsOut, splitList(*providers)); err != nil {
		log.Error().Err(err).Msg("export failed")
		os.Exit(1)
	}
}

func run(cfg utils.Config, log zerolog.Logger, setsOut, cardsOut string, providers []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sources := database.NewManager(database.ConfigFrom(cfg), logger.Component(log, "database"))
	defer sources.Close()
	ld := loader.New(sources, logger.Component(log, "loader"), nil)

	snap, err := ld.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	if err := writeFile(setsOut, func(w io.Writer) error { return writeSets(w, snap.Sets) }); err != nil {
		return fmt.Errorf("export sets: %w", err)
	}
	if err := writeFile(cardsOut, func(w io.Writer) error { return writeCards(w, snap.Cards, providers) }); err != nil {
		return fmt.Errorf("export cards: %w", err)
	}

	log.Info().
		Int("sets", len(snap.Sets)).
		Int("cards", len(snap.Cards)).
		Str("sets_path", setsOut).
		Str("cards_path", cardsOut).
		Msg("export complete")
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}

func writeSets(out io.Writer, sets []models.SetSummary) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"code", "name", "type", "release_date", "block", "online_only", "keyrune_code"}); err != nil {
		return err
	}
	for _, s := range sets {
		if err := w.Write([]string{
			s.Code,
			s.Name,
			s.Type,
			s.ReleaseDate,
			deref(s.Block),
			strconv.FormatBool(s.IsOnlineOnly),
			deref(s.KeyruneCode),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeCards emits one row per card with the retail price of each provider
// for the normal and foil finishes. Missing prices are left empty.
func writeCards(out io.Writer, cards []models.CardRecord, providers []string) error {
	finishes := []string{models.FinishNormal, "foil"}

	header := []string{"uuid", "name", "set_code", "rarity", "mana_cost"}
	for _, p := range providers {
		for _, f := range finishes {
			header = append(header, p+"_"+f)
		}
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, c := range cards {
		rec := []string{
			c.UUID,
			c.Name,
			c.SetCode,
			c.Attributes.String("rarity"),
			c.Attributes.String("manaCost"),
		}
		for _, p := range providers {
			for _, f := range finishes {
				price := ""
				if v, ok := c.Pricing.Price(models.ListingRetail, f, p); ok {
					price = v.StringFixed(2)
				}
				rec = append(rec, price)
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

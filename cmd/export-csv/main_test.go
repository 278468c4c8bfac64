package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mtgdata/internal/testutil"
	"mtgdata/pkg/database"
	"mtgdata/pkg/models"
	"mtgdata/pkg/utils"
)

func TestWriteCards(t *testing.T) {
	pricing := models.Pricing{}
	pricing.Set(models.ListingRetail, models.FinishNormal, "tcgplayer", decimal.RequireFromString("2.5"))
	pricing.Set(models.ListingBuylist, models.FinishNormal, "cardkingdom", decimal.RequireFromString("1"))

	cards := []models.CardRecord{
		{UUID: "u1", Name: "Lightning Bolt", SetCode: "ABC", Attributes: models.Row{"rarity": "common", "manaCost": "{R}"}, Pricing: pricing},
		{UUID: "u2", Name: "Island", SetCode: "ABC"},
	}

	var buf bytes.Buffer
	if err := writeCards(&buf, cards, []string{"tcgplayer", "cardkingdom"}); err != nil {
		t.Fatalf("write cards: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	want := []string{"uuid", "name", "set_code", "rarity", "mana_cost", "tcgplayer_normal", "tcgplayer_foil", "cardkingdom_normal", "cardkingdom_foil"}
	for i, h := range want {
		if records[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], h)
		}
	}
	if got := records[1][5]; got != "2.50" {
		t.Errorf("tcgplayer normal = %q, want 2.50", got)
	}
	if got := records[1][7]; got != "" {
		t.Errorf("buylist price leaked into retail column: %q", got)
	}
	if got := records[2][3]; got != "" {
		t.Errorf("rarity without attributes = %q", got)
	}
}

func TestWriteSets(t *testing.T) {
	block := "Core"
	sets := []models.SetSummary{{Code: "ABC", Name: "Alpha", Type: "core", ReleaseDate: "1993-08-05", Block: &block}}

	var buf bytes.Buffer
	if err := writeSets(&buf, sets); err != nil {
		t.Fatalf("write sets: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if got := records[1]; got[0] != "ABC" || got[4] != "Core" || got[5] != "false" || got[6] != "" {
		t.Errorf("row = %v", got)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" TCGplayer, ,cardmarket ")
	if len(got) != 2 || got[0] != "tcgplayer" || got[1] != "cardmarket" {
		t.Errorf("splitList = %v", got)
	}
}

func exportConfig(dir string) utils.Config {
	return utils.Config{
		DataDir:       dir,
		CardDBFile:    "AllPrintings.sqlite",
		PricingDBFile: "AllPricesToday.sqlite",
	}
}

func TestRunWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCatalog(t, dir,
		`INSERT INTO meta VALUES ('2024-06-01', '5.2.2')`,
		`INSERT INTO sets (code, name, type, isOnlineOnly) VALUES ('ABC', 'Alpha', 'core', 0)`,
		`INSERT INTO cards (uuid, name, setCode) VALUES ('u1', 'Lightning Bolt', 'ABC')`,
	)
	testutil.WritePricing(t, dir,
		`INSERT INTO cardPrices VALUES ('u1', 2.5, 'USD', 'paper', '2024-06-01', 'retail', NULL, 'TCGplayer')`,
	)

	out := t.TempDir()
	setsOut := filepath.Join(out, "sets.csv")
	cardsOut := filepath.Join(out, "nested", "cards.csv")
	if err := run(exportConfig(dir), zerolog.Nop(), setsOut, cardsOut, []string{"tcgplayer"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	for path, rows := range map[string]int{setsOut: 2, cardsOut: 2} {
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		records, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if len(records) != rows {
			t.Errorf("%s rows = %d, want %d", filepath.Base(path), len(records), rows)
		}
	}
}

func TestRunReturnsLoadError(t *testing.T) {
	out := t.TempDir()
	setsOut := filepath.Join(out, "sets.csv")

	err := run(exportConfig(t.TempDir()), zerolog.Nop(), setsOut, filepath.Join(out, "cards.csv"), nil)
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, statErr := os.Stat(setsOut); !os.IsNotExist(statErr) {
		t.Errorf("sets file written after a failed load: %v", statErr)
	}
}

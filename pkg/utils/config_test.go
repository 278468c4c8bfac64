package utils

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.RemoteDataURL != DefaultRemoteDataURL {
		t.Fatalf("expected default remote url, got %q", cfg.RemoteDataURL)
	}
	if cfg.RemoteSymbolsURL != DefaultRemoteSymbolsURL {
		t.Fatalf("expected default symbols url, got %q", cfg.RemoteSymbolsURL)
	}
	if !cfg.LoadOnStart {
		t.Fatal("expected load on start by default")
	}
	if cfg.DownloadTimeout != 10*time.Minute {
		t.Fatalf("expected 10m download timeout, got %s", cfg.DownloadTimeout)
	}
	if got, want := cfg.CardDBPath(), filepath.Join("data", "AllPrintings.sqlite"); got != want {
		t.Fatalf("card db path = %q, want %q", got, want)
	}
	if got, want := cfg.PricingDBPath(), filepath.Join("data", "AllPricesToday.sqlite"); got != want {
		t.Fatalf("pricing db path = %q, want %q", got, want)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MTGDATA_DATA_DIR", "/srv/mtg")
	t.Setenv("MTGDATA_SYMBOLS_FILE", "sym.json")
	t.Setenv("MTGDATA_LOAD_ON_START", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LoadOnStart {
		t.Fatal("expected load on start disabled")
	}
	if got, want := cfg.SymbolsPath(), filepath.Join("/srv/mtg", "sym.json"); got != want {
		t.Fatalf("symbols path = %q, want %q", got, want)
	}
}

func TestLoadConfigError(t *testing.T) {
	t.Setenv("MTGDATA_DOWNLOAD_TIMEOUT", "soon")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mtgdata/internal/archive"
)

func TestMirrorFeedsArchiveClient(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "AllPrintings.sqlite"), []byte("card-db"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "symbols.json"), []byte(`[{"symbol":"{G}"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	mod := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(src, "AllPrintings.sqlite"), mod, mod); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(newMirror(src, zerolog.Nop()))
	defer srv.Close()

	dst := t.TempDir()
	client := archive.NewClient(archive.Config{
		DataDir:          dst,
		CardDBPath:       filepath.Join(dst, "AllPrintings.sqlite"),
		PricingDBPath:    filepath.Join(dst, "AllPricesToday.sqlite"),
		SymbolsPath:      filepath.Join(dst, "symbols.json"),
		RemoteDataURL:    srv.URL + "/AllPrintings.sqlite.zip",
		RemoteSymbolsURL: srv.URL + "/symbology",
	}, zerolog.Nop())
	ctx := context.Background()

	remote, err := client.RemoteLastModified(ctx)
	if err != nil {
		t.Fatalf("last modified: %v", err)
	}
	if remote == nil || !remote.Equal(mod) {
		t.Errorf("remote = %v, want %v", remote, mod)
	}

	if _, err := client.DownloadCardData(ctx); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dst, "AllPrintings.sqlite"))
	if string(got) != "card-db" {
		t.Errorf("downloaded db = %q", got)
	}

	symbols, err := client.LoadSymbols(ctx)
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	if len(symbols) == 0 {
		t.Error("symbols empty")
	}
}

func TestMirrorRejectsUnknownPaths(t *testing.T) {
	srv := httptest.NewServer(newMirror(t.TempDir(), zerolog.Nop()))
	defer srv.Close()

	for _, p := range []string{"/titles", "/missing.sqlite.zip", "/symbology"} {
		resp, err := http.Get(srv.URL + p)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", p, resp.StatusCode)
		}
	}
}

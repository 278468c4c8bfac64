package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mtgdata/internal/logger"
)

// mirror-server serves the files of a data directory in the shape of the
// upstream endpoints, so the archive client can be pointed at it offline:
//
//	MTGDATA_REMOTE_DATA_URL=http://localhost:9000/AllPrintings.sqlite.zip
//	MTGDATA_REMOTE_SYMBOLS_URL=http://localhost:9000/symbology
func main() {
	var (
		addr = flag.String("addr", ":9000", "listen address")
		dir  = flag.String("dir", "data/mirror", "directory holding *.sqlite and symbols.json")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: os.Getenv("MTGDATA_LOG_LEVEL")})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMirror(*dir, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", *addr).Str("dir", *dir).Msg("mirror-server listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("mirror-server stopped")
	}
}

func newMirror(dir string, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// GET|HEAD /<name>.sqlite.zip zips <dir>/<name>.sqlite on the fly
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if !strings.HasSuffix(name, ".sqlite.zip") || strings.ContainsAny(name, `/\`) {
			http.NotFound(w, r)
			return
		}
		entry := strings.TrimSuffix(name, ".zip")
		path := filepath.Join(dir, entry)

		info, err := os.Stat(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		payload, err := zipFile(path, entry)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("zip failed")
			http.Error(w, "cannot build archive", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(payload))
	})

	// GET /symbology wraps symbols.json the way the symbology API does
	mux.HandleFunc("/symbology", func(w http.ResponseWriter, r *http.Request) {
		b, err := os.ReadFile(filepath.Join(dir, "symbols.json"))
		if err != nil {
			http.Error(w, "cannot read symbols.json: "+err.Error(), http.StatusNotFound)
			return
		}
		// validate JSON so a bad file doesn't silently break clients
		if !json.Valid(b) {
			http.Error(w, "symbols.json invalid JSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   json.RawMessage(b),
		})
	})

	return mux
}

func zipFile(path, entry string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(entry)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

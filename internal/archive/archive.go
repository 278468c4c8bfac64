// Package archive fetches the MTGJSON SQLite archives and the Scryfall
// symbology into the local data directory.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mtgdata/pkg/utils"
)

var (
	// ErrDownloadInProgress is returned when a download is already running.
	ErrDownloadInProgress = errors.New("download already in progress")
	// ErrNoSQLiteEntry is returned when an archive holds no .sqlite file.
	ErrNoSQLiteEntry = errors.New("no sqlite file in archive")
)

type Config struct {
	DataDir          string
	CardDBPath       string
	PricingDBPath    string
	SymbolsPath      string
	RemoteDataURL    string
	RemotePricingURL string
	RemoteSymbolsURL string
}

func ConfigFrom(cfg utils.Config) Config {
	return Config{
		DataDir:          cfg.DataDir,
		CardDBPath:       cfg.CardDBPath(),
		PricingDBPath:    cfg.PricingDBPath(),
		SymbolsPath:      cfg.SymbolsPath(),
		RemoteDataURL:    cfg.RemoteDataURL,
		RemotePricingURL: cfg.RemotePricingURL,
		RemoteSymbolsURL: cfg.RemoteSymbolsURL,
	}
}

type Client struct {
	HTTP *http.Client
	cfg  Config
	log  zerolog.Logger

	mu      sync.Mutex
	running bool
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		HTTP: &http.Client{Timeout: 15 * time.Minute},
		cfg:  cfg,
		log:  log,
	}
}

func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// RemoteLastModified returns the Last-Modified header of the remote card
// archive, nil when the server does not send one.
func (c *Client) RemoteLastModified(ctx context.Context) (*time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.RemoteDataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", c.cfg.RemoteDataURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("head %s: status %d", c.cfg.RemoteDataURL, resp.StatusCode)
	}

	v := resp.Header.Get("Last-Modified")
	if v == "" {
		return nil, nil
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return nil, fmt.Errorf("parse last-modified %q: %w", v, err)
	}
	t = t.UTC()
	return &t, nil
}

// LocalLastModified returns the mtime of the local card database, nil when
// it does not exist.
func (c *Client) LocalLastModified() *time.Time {
	info, err := os.Stat(c.cfg.CardDBPath)
	if err != nil {
		return nil
	}
	t := info.ModTime().UTC()
	return &t
}

type DownloadResult struct {
	Files    []string      `json:"files"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// DownloadCardData fetches the card archive, and the pricing archive when
// one is configured, and replaces the local databases. Open handles on the
// old files must be closed by the caller afterwards.
func (c *Client) DownloadCardData(ctx context.Context) (*DownloadResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrDownloadInProgress
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	start := time.Now()
	if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	res := &DownloadResult{}
	targets := []struct{ url, dest string }{{c.cfg.RemoteDataURL, c.cfg.CardDBPath}}
	if c.cfg.RemotePricingURL != "" {
		targets = append(targets, struct{ url, dest string }{c.cfg.RemotePricingURL, c.cfg.PricingDBPath})
	}
	for _, t := range targets {
		n, err := c.fetchSQLite(ctx, t.url, t.dest)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, t.dest)
		res.Bytes += n
	}
	res.Duration = time.Since(start)
	c.log.Info().Strs("files", res.Files).Int64("bytes", res.Bytes).Dur("duration", res.Duration).Msg("card data downloaded")
	return res, nil
}

// fetchSQLite downloads a zip from url and extracts its .sqlite entry to dest.
func (c *Client) fetchSQLite(ctx context.Context, url, dest string) (int64, error) {
	c.log.Info().Str("url", url).Msg("downloading archive")

	tmpZip, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.zip")
	if err != nil {
		return 0, fmt.Errorf("create temp zip: %w", err)
	}
	defer os.Remove(tmpZip.Name())

	if err := c.get(ctx, url, tmpZip); err != nil {
		_ = tmpZip.Close()
		return 0, err
	}
	if err := tmpZip.Close(); err != nil {
		return 0, fmt.Errorf("close temp zip: %w", err)
	}

	return extractSQLite(tmpZip.Name(), dest)
}

func (c *Client) get(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	return nil
}

// extractSQLite writes the archive entry named like dest, or else the first
// .sqlite entry, to dest. The file is replaced atomically.
func extractSQLite(zipPath, dest string) (int64, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	var entry *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		if name == filepath.Base(dest) {
			entry = f
			break
		}
		if entry == nil && strings.HasSuffix(strings.ToLower(name), ".sqlite") {
			entry = f
		}
	}
	if entry == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoSQLiteEntry, filepath.Base(zipPath))
	}

	rc, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	return writeAtomic(dest, rc)
}

func writeAtomic(dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("rename into %s: %w", dest, err)
	}
	return n, nil
}

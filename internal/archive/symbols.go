package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// symbology is the envelope of the Scryfall /symbology list.
type symbology struct {
	Data json.RawMessage `json:"data"`
}

// DownloadSymbols fetches the symbology list and stores its data array.
func (c *Client) DownloadSymbols(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.cfg.SymbolsPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	var buf bytes.Buffer
	if err := c.get(ctx, c.cfg.RemoteSymbolsURL, &buf); err != nil {
		return err
	}
	var env symbology
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		return fmt.Errorf("decode symbology: %w", err)
	}
	if len(env.Data) == 0 || !json.Valid(env.Data) {
		return errors.New("decode symbology: missing data array")
	}

	var out bytes.Buffer
	if err := json.Indent(&out, env.Data, "", "  "); err != nil {
		return fmt.Errorf("indent symbology: %w", err)
	}
	if _, err := writeAtomic(c.cfg.SymbolsPath, &out); err != nil {
		return err
	}
	c.log.Info().Str("path", c.cfg.SymbolsPath).Msg("symbols downloaded")
	return nil
}

// LoadSymbols reads the local symbols file, downloading it first when it
// does not exist yet.
func (c *Client) LoadSymbols(ctx context.Context) (json.RawMessage, error) {
	b, err := os.ReadFile(c.cfg.SymbolsPath)
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Warn().Str("path", c.cfg.SymbolsPath).Msg("symbols file not found, downloading")
		if err := c.DownloadSymbols(ctx); err != nil {
			return nil, fmt.Errorf("download symbols: %w", err)
		}
		b, err = os.ReadFile(c.cfg.SymbolsPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("read symbols: %s is not valid JSON", c.cfg.SymbolsPath)
	}
	return json.RawMessage(b), nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"mtgdata/pkg/utils"
)

// ErrNotFound is returned when a source file does not exist on disk.
var ErrNotFound = errors.New("source not found")

type Kind string

const (
	KindCatalog Kind = "catalog"
	KindPricing Kind = "pricing"
)

type Config struct {
	CatalogPath string
	PricingPath string
}

func ConfigFrom(cfg utils.Config) Config {
	return Config{
		CatalogPath: cfg.CardDBPath(),
		PricingPath: cfg.PricingDBPath(),
	}
}

var dsnEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// Open opens the SQLite file at path read-only. A missing file yields an
// error wrapping ErrNotFound.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", "file:"+dsnEscaper.Replace(path)+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Queryer is satisfied by *sql.DB and by a pinned *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TableExists reports whether name is a table in db.
func TableExists(ctx context.Context, db Queryer, name string) (bool, error) {
	var found string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return true, nil
}

type source struct {
	mu   sync.Mutex
	kind Kind
	path string
	db   *sql.DB
}

func (s *source) open(ctx context.Context, log zerolog.Logger) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	log.Info().Str("source", string(s.kind)).Str("path", s.path).Msg("opening sqlite source")
	db, err := Open(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", s.kind, err)
	}
	s.db = db
	return db, nil
}

func (s *source) close() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return false, nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return true, fmt.Errorf("close %s source: %w", s.kind, err)
	}
	return true, nil
}

func (s *source) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

// Manager owns the two read-only sources. Handles are opened on first use
// and cached until Close.
type Manager struct {
	catalog *source
	pricing *source
	log     zerolog.Logger
}

func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		catalog: &source{kind: KindCatalog, path: cfg.CatalogPath},
		pricing: &source{kind: KindPricing, path: cfg.PricingPath},
		log:     log,
	}
}

func (m *Manager) OpenCatalog(ctx context.Context) (*sql.DB, error) {
	return m.catalog.open(ctx, m.log)
}

// OpenPricing returns the pricing handle. Callers treat ErrNotFound as
// "no prices available", not as a failure.
func (m *Manager) OpenPricing(ctx context.Context) (*sql.DB, error) {
	return m.pricing.open(ctx, m.log)
}

// Close releases both handles. Safe to call repeatedly or before any open.
func (m *Manager) Close() error {
	var errs []error
	for _, s := range []*source{m.catalog, m.pricing} {
		closed, err := s.close()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if closed {
			m.log.Info().Str("source", string(s.kind)).Msg("sqlite source closed")
		}
	}
	return errors.Join(errs...)
}

type FileStatus struct {
	Kind         Kind       `json:"kind"`
	Path         string     `json:"path"`
	Exists       bool       `json:"exists"`
	Open         bool       `json:"open"`
	LastModified *time.Time `json:"lastModified"`
	SizeBytes    int64      `json:"sizeBytes"`
}

// Files reports presence and modification time of both source files.
func (m *Manager) Files() []FileStatus {
	out := make([]FileStatus, 0, 2)
	for _, s := range []*source{m.catalog, m.pricing} {
		st := FileStatus{Kind: s.kind, Path: s.path, Open: s.isOpen()}
		if info, err := os.Stat(s.path); err == nil {
			mod := info.ModTime()
			st.Exists = true
			st.LastModified = &mod
			st.SizeBytes = info.Size()
		}
		out = append(out, st)
	}
	return out
}

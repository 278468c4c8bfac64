// Package loader reads the catalog and pricing sources and joins them into
// self-contained card records.
//
// Only catalog failures are returned as errors. Identifier and pricing
// problems are logged, counted and the enrichment is left out.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mtgdata/internal/metrics"
	"mtgdata/pkg/database"
	"mtgdata/pkg/models"
)

// ErrTableMissing is returned when a source lacks an expected table.
var ErrTableMissing = errors.New("table missing")

const (
	EnrichmentMetadata    = "metadata"
	EnrichmentIdentifiers = "identifiers"
	EnrichmentPricing     = "pricing"
)

// Sources is the subset of database.Manager the loader needs.
type Sources interface {
	OpenCatalog(ctx context.Context) (*sql.DB, error)
	OpenPricing(ctx context.Context) (*sql.DB, error)
}

type Loader struct {
	sources Sources
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func New(sources Sources, log zerolog.Logger, m *metrics.Metrics) *Loader {
	return &Loader{sources: sources, log: log, metrics: m}
}

func (l *Loader) degrade(enrichment string, err error) {
	event := l.log.Warn().Str("enrichment", enrichment).Err(err)
	switch {
	case errors.Is(err, database.ErrNotFound):
		event.Msg("source unavailable, continuing without enrichment")
	case errors.Is(err, ErrTableMissing):
		event.Msg("table missing, continuing without enrichment")
	default:
		event.Msg("enrichment failed, continuing without it")
	}
	l.metrics.RecordDegraded(enrichment)
}

// Snapshot is the result of one full load.
type Snapshot struct {
	Metadata models.Metadata
	Sets     []models.SetSummary
	Cards    []models.CardRecord
}

// LoadSnapshot reads metadata, sets and cards through one pinned connection
// per source, opened up front. A file replaced while the load runs is not
// seen until the next load, so every part comes from the same pair of files.
func (l *Loader) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	db, err := l.sources.OpenCatalog(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open catalog: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open catalog: %w", err)
	}
	defer conn.Close()

	prices := l.pinPricing(ctx)
	defer prices.close()

	md := l.metadataFrom(ctx, conn)
	sets, err := l.setsFrom(ctx, conn)
	if err != nil {
		return Snapshot{}, err
	}
	cards, err := l.cardsFrom(ctx, conn, func() (map[string]models.Pricing, error) {
		if prices.err != nil {
			return nil, prices.err
		}
		return l.pricesFrom(ctx, prices.conn, nil)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Metadata: md, Sets: sets, Cards: cards}, nil
}

type pinnedConn struct {
	conn *sql.Conn
	err  error
}

func (p pinnedConn) close() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// pinPricing opens the pricing source; a failure is kept for the pricing
// step to degrade on.
func (l *Loader) pinPricing(ctx context.Context) pinnedConn {
	db, err := l.sources.OpenPricing(ctx)
	if err != nil {
		return pinnedConn{err: err}
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return pinnedConn{err: fmt.Errorf("open pricing: %w", err)}
	}
	return pinnedConn{conn: conn}
}

// LoadMetadata reads the single meta row. Any problem yields the zero value.
func (l *Loader) LoadMetadata(ctx context.Context) models.Metadata {
	db, err := l.sources.OpenCatalog(ctx)
	if err != nil {
		l.degrade(EnrichmentMetadata, err)
		return models.Metadata{}
	}
	return l.metadataFrom(ctx, db)
}

func (l *Loader) metadataFrom(ctx context.Context, db database.Queryer) models.Metadata {
	if err := ensureTable(ctx, db, "meta"); err != nil {
		l.degrade(EnrichmentMetadata, err)
		return models.Metadata{}
	}
	rows, err := queryRows(ctx, db, `SELECT date, version FROM meta LIMIT 1`)
	if err != nil {
		l.degrade(EnrichmentMetadata, err)
		return models.Metadata{}
	}
	if len(rows) == 0 {
		return models.Metadata{}
	}
	return models.Metadata{
		Date:    rows[0].String("date"),
		Version: rows[0].String("version"),
	}
}

// LoadSetList returns every row of the sets table in source order. A
// missing table is an empty list, not an error.
func (l *Loader) LoadSetList(ctx context.Context) ([]models.SetSummary, error) {
	db, err := l.sources.OpenCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return l.setsFrom(ctx, db)
}

func (l *Loader) setsFrom(ctx context.Context, db database.Queryer) ([]models.SetSummary, error) {
	rows, err := selectAll(ctx, db, "sets")
	if errors.Is(err, ErrTableMissing) {
		l.log.Warn().Err(err).Msg("sets table doesn't exist in the catalog")
		return []models.SetSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sets: %w", err)
	}

	sets := make([]models.SetSummary, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	dups := 0
	for _, row := range rows {
		set := models.SetSummaryFromRow(row)
		if _, ok := seen[set.Code]; ok {
			dups++
		}
		seen[set.Code] = struct{}{}
		sets = append(sets, set)
	}
	if dups > 0 {
		l.log.Warn().Int("duplicates", dups).Msg("duplicate set codes, lookups use the first")
	}
	return sets, nil
}

// LoadCards joins every card row with its identifiers and pricing,
// preserving the order of the cards table.
func (l *Loader) LoadCards(ctx context.Context) ([]models.CardRecord, error) {
	db, err := l.sources.OpenCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return l.cardsFrom(ctx, db, func() (map[string]models.Pricing, error) {
		return l.ComputePricingMap(ctx)
	})
}

func (l *Loader) cardsFrom(ctx context.Context, db database.Queryer, prices func() (map[string]models.Pricing, error)) ([]models.CardRecord, error) {
	rows, err := selectAll(ctx, db, "cards")
	if errors.Is(err, ErrTableMissing) {
		l.log.Warn().Err(err).Msg("cards table doesn't exist in the catalog")
		return []models.CardRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}

	var identifiers map[string]models.Row
	if idRows, err := selectAll(ctx, db, "cardIdentifiers"); err != nil {
		l.degrade(EnrichmentIdentifiers, err)
	} else {
		identifiers = l.identifierMap(idRows)
	}

	pricing, err := prices()
	if err != nil {
		l.degrade(EnrichmentPricing, err)
	}

	cards := join(rows, identifiers, pricing)
	if dups := duplicateUUIDs(cards); dups > 0 {
		l.log.Warn().Int("duplicates", dups).Msg("duplicate card uuids in cards table")
	}
	return cards, nil
}

// LoadCardsByUUID runs the same join live for a batch of uuids. Unknown
// uuids are simply absent from the result.
func (l *Loader) LoadCardsByUUID(ctx context.Context, uuids []string) ([]models.CardRecord, error) {
	if len(uuids) == 0 {
		return []models.CardRecord{}, nil
	}
	db, err := l.sources.OpenCatalog(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := selectByUUID(ctx, db, "cards", uuids)
	if errors.Is(err, ErrTableMissing) {
		l.log.Warn().Err(err).Msg("cards table doesn't exist in the catalog")
		return []models.CardRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cards by uuid: %w", err)
	}
	if len(rows) == 0 {
		return []models.CardRecord{}, nil
	}

	var identifiers map[string]models.Row
	if idRows, err := selectByUUID(ctx, db, "cardIdentifiers", uuids); err != nil {
		l.degrade(EnrichmentIdentifiers, err)
	} else {
		identifiers = l.identifierMap(idRows)
	}

	pricing, err := l.pricingMap(ctx, uuids)
	if err != nil {
		l.degrade(EnrichmentPricing, err)
	}
	return join(rows, identifiers, pricing), nil
}

// SearchUUIDsByName returns up to limit uuids whose name contains substr.
// Case sensitivity follows the SQLite LIKE collation (ASCII insensitive).
func (l *Loader) SearchUUIDsByName(ctx context.Context, substr string, limit int) ([]string, error) {
	db, err := l.sources.OpenCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if err := ensureTable(ctx, db, "cards"); err != nil {
		if errors.Is(err, ErrTableMissing) {
			return []string{}, nil
		}
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT uuid FROM cards WHERE name LIKE ? ESCAPE '\' LIMIT ?`,
		likePattern(substr), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search cards: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, limit)
	for rows.Next() {
		var uuid sql.NullString
		if err := rows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("search scan: %w", err)
		}
		if uuid.Valid && uuid.String != "" {
			out = append(out, uuid.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// identifierMap keys identifier rows by uuid; the last row wins.
func (l *Loader) identifierMap(rows []models.Row) map[string]models.Row {
	out := make(map[string]models.Row, len(rows))
	dups := 0
	for _, row := range rows {
		uuid := row.String("uuid")
		if uuid == "" {
			continue
		}
		if _, ok := out[uuid]; ok {
			dups++
		}
		out[uuid] = row
	}
	if dups > 0 {
		l.log.Warn().Int("duplicates", dups).Msg("duplicate identifier rows, keeping the last")
	}
	return out
}

func join(rows []models.Row, identifiers map[string]models.Row, pricing map[string]models.Pricing) []models.CardRecord {
	cards := make([]models.CardRecord, 0, len(rows))
	for _, row := range rows {
		card := models.CardRecordFromRow(row)
		card.Identifiers = identifiers[card.UUID]
		card.Pricing = pricing[card.UUID]
		cards = append(cards, card)
	}
	return cards
}

func duplicateUUIDs(cards []models.CardRecord) int {
	seen := make(map[string]struct{}, len(cards))
	dups := 0
	for _, c := range cards {
		if _, ok := seen[c.UUID]; ok {
			dups++
		}
		seen[c.UUID] = struct{}{}
	}
	return dups
}

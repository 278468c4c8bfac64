package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mtgdata/pkg/database"
	"mtgdata/pkg/models"
)

// latestPricesSQL keeps, per (uuid, provider, listing, finish), the rows on
// the latest paper/USD date. Both %s verbs take the same optional uuid
// filter. Rows come back in rowid order so the fold below resolves
// equal-date duplicates to the later row.
const latestPricesSQL = `
	SELECT p.uuid, p.price, p.providerListing, p.cardFinish, p.priceProvider, p.date
	FROM cardPrices p
	JOIN (
		SELECT uuid, priceProvider, providerListing, cardFinish, MAX(date) AS latest
		FROM cardPrices
		WHERE gameAvailability = 'paper' AND currency = 'USD'%s
		GROUP BY uuid, priceProvider, providerListing, cardFinish
	) m
	  ON m.uuid = p.uuid
	 AND m.priceProvider IS p.priceProvider
	 AND m.providerListing IS p.providerListing
	 AND m.cardFinish IS p.cardFinish
	 AND m.latest = p.date
	WHERE p.gameAvailability = 'paper' AND p.currency = 'USD'%s
	ORDER BY p.rowid
`

func latestPricesQuery(batch int) string {
	if batch == 0 {
		return fmt.Sprintf(latestPricesSQL, "", "")
	}
	in := placeholders(batch)
	return fmt.Sprintf(latestPricesSQL, " AND uuid IN ("+in+")", " AND p.uuid IN ("+in+")")
}

// PriceRow is one observation from the cardPrices table.
type PriceRow struct {
	UUID            string
	Price           decimal.NullDecimal
	ProviderListing sql.NullString
	CardFinish      sql.NullString
	PriceProvider   sql.NullString
	Date            string
}

type leafKey struct {
	uuid, listing, finish, provider string
}

// Pivot folds price rows into uuid -> listing -> finish -> provider -> price.
// Rows without a price or provider are skipped; for a given leaf the latest
// date wins and equal dates resolve to the later row.
func Pivot(rows []PriceRow) map[string]models.Pricing {
	p := newPivot()
	for _, r := range rows {
		p.add(r)
	}
	return p.prices
}

type pivot struct {
	prices map[string]models.Pricing
	dates  map[leafKey]string
}

func newPivot() *pivot {
	return &pivot{
		prices: make(map[string]models.Pricing),
		dates:  make(map[leafKey]string),
	}
}

func (p *pivot) add(r PriceRow) {
	if !r.Price.Valid || r.UUID == "" {
		return
	}
	provider := strings.ToLower(strings.TrimSpace(r.PriceProvider.String))
	if provider == "" {
		return
	}
	key := leafKey{
		uuid:     r.UUID,
		listing:  listingType(r.ProviderListing),
		finish:   cardFinish(r.CardFinish),
		provider: provider,
	}
	if prev, seen := p.dates[key]; seen && r.Date < prev {
		return
	}
	p.dates[key] = r.Date

	pricing, ok := p.prices[r.UUID]
	if !ok {
		pricing = make(models.Pricing)
		p.prices[r.UUID] = pricing
	}
	pricing.Set(key.listing, key.finish, key.provider, r.Price.Decimal)
}

func listingType(v sql.NullString) string {
	if strings.ToLower(strings.TrimSpace(v.String)) == models.ListingBuylist {
		return models.ListingBuylist
	}
	return models.ListingRetail
}

func cardFinish(v sql.NullString) string {
	finish := strings.ToLower(strings.TrimSpace(v.String))
	if finish == "" {
		return models.FinishNormal
	}
	return finish
}

// ComputePricingMap pivots the latest paper/USD prices of every card. The
// error wraps database.ErrNotFound when there is no pricing source and
// ErrTableMissing when it has no cardPrices table.
func (l *Loader) ComputePricingMap(ctx context.Context) (map[string]models.Pricing, error) {
	return l.pricingMap(ctx, nil)
}

func (l *Loader) pricingMap(ctx context.Context, uuids []string) (map[string]models.Pricing, error) {
	db, err := l.sources.OpenPricing(ctx)
	if err != nil {
		return nil, err
	}
	return l.pricesFrom(ctx, db, uuids)
}

// pricesFrom pivots the prices of uuids, or of every card when uuids is nil.
func (l *Loader) pricesFrom(ctx context.Context, db database.Queryer, uuids []string) (map[string]models.Pricing, error) {
	if err := ensureTable(ctx, db, "cardPrices"); err != nil {
		return nil, err
	}

	p := newPivot()
	if uuids == nil {
		if err := foldPrices(ctx, db, p, latestPricesQuery(0)); err != nil {
			return nil, err
		}
		l.log.Info().Int("cards", len(p.prices)).Msg("pricing loaded")
		return p.prices, nil
	}

	for _, chunk := range chunks(uuids, maxBatch) {
		args := anySlice(chunk)
		if err := foldPrices(ctx, db, p, latestPricesQuery(len(chunk)), append(args, args...)...); err != nil {
			return nil, err
		}
	}
	return p.prices, nil
}

func foldPrices(ctx context.Context, db database.Queryer, p *pivot, query string, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r    PriceRow
			uuid sql.NullString
			date any
		)
		if err := rows.Scan(&uuid, &r.Price, &r.ProviderListing, &r.CardFinish, &r.PriceProvider, &date); err != nil {
			return fmt.Errorf("scan price: %w", err)
		}
		r.UUID = uuid.String
		r.Date = models.ValueString(date)
		p.add(r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows err: %w", err)
	}
	return nil
}

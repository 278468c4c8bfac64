package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

func init() {
	// prices are served as JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	ListingRetail  = "retail"
	ListingBuylist = "buylist"
	FinishNormal   = "normal"
)

// Pricing is listing type -> card finish -> provider -> price.
type Pricing map[string]FinishPrices

type FinishPrices map[string]ProviderPrices

type ProviderPrices map[string]decimal.Decimal

// Set stores a price, creating the intermediate levels as needed.
func (p Pricing) Set(listing, finish, provider string, price decimal.Decimal) {
	finishes, ok := p[listing]
	if !ok {
		finishes = make(FinishPrices)
		p[listing] = finishes
	}
	providers, ok := finishes[finish]
	if !ok {
		providers = make(ProviderPrices)
		finishes[finish] = providers
	}
	providers[provider] = price
}

// Price looks up a single leaf.
func (p Pricing) Price(listing, finish, provider string) (decimal.Decimal, bool) {
	v, ok := p[listing][finish][provider]
	return v, ok
}

// CardRecord is a fully joined card: the base `cards` row plus its
// identifiers row and pricing. Identifiers and Pricing are nil when the
// source has no data for the card.
type CardRecord struct {
	UUID    string
	Name    string
	SetCode string

	Attributes  Row
	Identifiers Row
	Pricing     Pricing
}

func CardRecordFromRow(row Row) CardRecord {
	return CardRecord{
		UUID:       row.String("uuid"),
		Name:       row.String("name"),
		SetCode:    row.String("setCode"),
		Attributes: row,
	}
}

func (c CardRecord) MarshalJSON() ([]byte, error) {
	out := c.Attributes.Clone()
	if out == nil {
		out = make(Row, 5)
	}
	out["uuid"] = c.UUID
	out["name"] = c.Name
	out["setCode"] = c.SetCode
	out["identifiers"] = c.Identifiers
	out["pricing"] = c.Pricing
	return json.Marshal(map[string]any(out))
}

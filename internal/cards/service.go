// Package cards is the query layer over the catalog and the live sources,
// plus its HTTP handlers.
package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mtgdata/internal/catalog"
	"mtgdata/pkg/models"
)

var (
	// ErrInvalidArgument marks caller mistakes such as empty batches.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a set code that is not in the catalog.
	ErrNotFound = errors.New("not found")
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// Catalog is the read side of catalog.Store.
type Catalog interface {
	Metadata() models.Metadata
	AvailableSets(excludeOnlineOnly bool) []models.SetSummary
	SetByCode(code string) (models.SetSummary, bool)
	CardsBySetCode(code string) []models.CardRecord
	Symbols() json.RawMessage
	View() catalog.Reader
}

// Source answers the live queries that skip the catalog.
type Source interface {
	LoadCardsByUUID(ctx context.Context, uuids []string) ([]models.CardRecord, error)
	SearchUUIDsByName(ctx context.Context, substr string, limit int) ([]string, error)
}

type Service struct {
	catalog Catalog
	source  Source
}

func NewService(c Catalog, src Source) *Service {
	return &Service{catalog: c, source: src}
}

func (s *Service) Metadata() models.Metadata { return s.catalog.Metadata() }

func (s *Service) AvailableSets(excludeOnlineOnly bool) []models.SetSummary {
	return s.catalog.AvailableSets(excludeOnlineOnly)
}

func (s *Service) SetByCode(code string) (models.SetSummary, bool) {
	return s.catalog.SetByCode(code)
}

func (s *Service) CardsBySetCode(code string) []models.CardRecord {
	return s.catalog.CardsBySetCode(code)
}

func (s *Service) Symbols() json.RawMessage { return s.catalog.Symbols() }

// CardsByUUID fetches cards with current pricing straight from the sources.
// An empty batch returns an empty result without touching them.
func (s *Service) CardsByUUID(ctx context.Context, uuids []string) ([]models.CardRecord, error) {
	if len(uuids) == 0 {
		return []models.CardRecord{}, nil
	}
	ids, err := normalizeUUIDs(uuids)
	if err != nil {
		return nil, err
	}
	return s.source.LoadCardsByUUID(ctx, ids)
}

func normalizeUUIDs(uuids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(uuids))
	out := make([]string, 0, len(uuids))
	for _, raw := range uuids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("%w: blank uuid", ErrInvalidArgument)
		}
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: uuid %q", ErrInvalidArgument, raw)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// ClampLimit maps out of range limits to the default.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchLimit {
		return DefaultSearchLimit
	}
	return limit
}

// SearchByName returns up to limit cards whose name contains q, in match order.
func (s *Service) SearchByName(ctx context.Context, q string, limit int) ([]models.CardRecord, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidArgument)
	}
	ids, err := s.source.SearchUUIDsByName(ctx, q, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(ids) == 0 {
		return []models.CardRecord{}, nil
	}
	found, err := s.source.LoadCardsByUUID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("enrich search: %w", err)
	}

	byUUID := make(map[string]models.CardRecord, len(found))
	for _, c := range found {
		if _, ok := byUUID[c.UUID]; !ok {
			byUUID[c.UUID] = c
		}
	}
	out := make([]models.CardRecord, 0, len(ids))
	for _, id := range ids {
		if c, ok := byUUID[id]; ok {
			out = append(out, c)
			delete(byUUID, id)
		}
	}
	return out, nil
}

func normalizeCodes(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: no set codes", ErrInvalidArgument)
	}
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			return nil, fmt.Errorf("%w: blank set code", ErrInvalidArgument)
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

// SetsByCodes returns the named sets in request order, all from one load.
func (s *Service) SetsByCodes(codes []string) ([]models.SetSummary, error) {
	codes, err := normalizeCodes(codes)
	if err != nil {
		return nil, err
	}
	view := s.catalog.View()
	out := make([]models.SetSummary, 0, len(codes))
	for _, code := range codes {
		set, ok := view.SetByCode(code)
		if !ok {
			return nil, fmt.Errorf("%w: set %s", ErrNotFound, code)
		}
		out = append(out, set)
	}
	return out, nil
}

// CardsBySetCodes returns the cards of every named set, set by set, all
// from one load.
func (s *Service) CardsBySetCodes(codes []string) ([]models.CardRecord, error) {
	codes, err := normalizeCodes(codes)
	if err != nil {
		return nil, err
	}
	view := s.catalog.View()
	var out []models.CardRecord
	for _, code := range codes {
		if _, ok := view.SetByCode(code); !ok {
			return nil, fmt.Errorf("%w: set %s", ErrNotFound, code)
		}
		out = append(out, view.CardsBySetCode(code)...)
	}
	if out == nil {
		out = []models.CardRecord{}
	}
	return out, nil
}

// Package catalog holds the in-memory card catalog. Readers always see one
// complete snapshot; Initialize replaces it wholesale or not at all.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mtgdata/internal/loader"
	"mtgdata/internal/metrics"
	"mtgdata/pkg/models"
)

// Loader is the part of loader.Loader a load needs.
type Loader interface {
	LoadSnapshot(ctx context.Context) (loader.Snapshot, error)
}

// Reader answers lookups against one published catalog.
type Reader interface {
	SetByCode(code string) (models.SetSummary, bool)
	CardsBySetCode(code string) []models.CardRecord
}

type snapshot struct {
	metadata   models.Metadata
	sets       []models.SetSummary
	cards      []models.CardRecord
	setIndex   map[string]int
	cardsBySet map[string][]int
	loadedAt   time.Time
}

func newSnapshot(md models.Metadata, sets []models.SetSummary, cards []models.CardRecord) *snapshot {
	s := &snapshot{
		metadata:   md,
		sets:       sets,
		cards:      cards,
		setIndex:   make(map[string]int, len(sets)),
		cardsBySet: make(map[string][]int, len(sets)),
		loadedAt:   time.Now().UTC(),
	}
	for i, set := range sets {
		if _, ok := s.setIndex[set.Code]; !ok {
			s.setIndex[set.Code] = i
		}
	}
	for i, card := range cards {
		s.cardsBySet[card.SetCode] = append(s.cardsBySet[card.SetCode], i)
	}
	return s
}

// SetByCode returns the first set with the given code.
func (s *snapshot) SetByCode(code string) (models.SetSummary, bool) {
	i, ok := s.setIndex[code]
	if !ok {
		return models.SetSummary{}, false
	}
	return s.sets[i], true
}

// CardsBySetCode returns the cards of a set in source order, never nil.
func (s *snapshot) CardsBySetCode(code string) []models.CardRecord {
	idx := s.cardsBySet[code]
	out := make([]models.CardRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.cards[i])
	}
	return out
}

var empty = &snapshot{
	sets:       []models.SetSummary{},
	cards:      []models.CardRecord{},
	setIndex:   map[string]int{},
	cardsBySet: map[string][]int{},
}

// LoadResult is passed to OnLoad hooks after every attempt.
type LoadResult struct {
	Err      error
	Metadata models.Metadata
	Sets     int
	Cards    int
	Duration time.Duration
	At       time.Time
}

type Store struct {
	loader  Loader
	log     zerolog.Logger
	metrics *metrics.Metrics

	loadMu  sync.Mutex
	loading atomic.Bool
	current atomic.Pointer[snapshot]
	symbols atomic.Pointer[json.RawMessage]

	mu          sync.RWMutex
	lastAttempt time.Time
	lastErr     error
	hooks       []func(LoadResult)
}

func New(l Loader, log zerolog.Logger, m *metrics.Metrics) *Store {
	return &Store{loader: l, log: log, metrics: m}
}

// OnLoad registers fn to run after each load attempt, on the loading goroutine.
func (s *Store) OnLoad(fn func(LoadResult)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Initialize loads metadata, sets and cards and publishes them together.
// Concurrent calls run one after another. On error the previously published
// catalog stays in place.
func (s *Store) Initialize(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.loading.Store(true)
	defer s.loading.Store(false)

	start := time.Now()
	s.log.Info().Msg("initializing card catalog")

	snap, err := s.load(ctx)
	res := LoadResult{Err: err, Duration: time.Since(start), At: time.Now().UTC()}
	if err != nil {
		s.log.Error().Err(err).Dur("duration", res.Duration).Msg("catalog load failed, keeping previous catalog")
		s.metrics.RecordLoad("failure", res.Duration, 0, 0)
	} else {
		s.current.Store(snap)
		res.Metadata = snap.metadata
		res.Sets = len(snap.sets)
		res.Cards = len(snap.cards)
		s.log.Info().
			Int("sets", res.Sets).
			Int("cards", res.Cards).
			Str("version", snap.metadata.Version).
			Dur("duration", res.Duration).
			Msg("catalog loaded")
		s.metrics.RecordLoad("success", res.Duration, res.Sets, res.Cards)
	}

	s.mu.Lock()
	s.lastAttempt = res.At
	s.lastErr = err
	hooks := append([]func(LoadResult){}, s.hooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(res)
	}
	return err
}

func (s *Store) load(ctx context.Context) (*snapshot, error) {
	res, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return newSnapshot(res.Metadata, res.Sets, res.Cards), nil
}

// Reopen runs release, typically closing the source handles after the files
// were replaced, while no load is in progress. The next load opens the new
// files.
func (s *Store) Reopen(release func() error) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return release()
}

func (s *Store) snap() *snapshot {
	if p := s.current.Load(); p != nil {
		return p
	}
	return empty
}

// Loaded reports whether any load has succeeded.
func (s *Store) Loaded() bool {
	return s.current.Load() != nil
}

func (s *Store) Metadata() models.Metadata {
	return s.snap().metadata
}

// AvailableSets returns the sets in source order, without the online-only
// ones when excludeOnlineOnly is set.
func (s *Store) AvailableSets(excludeOnlineOnly bool) []models.SetSummary {
	sets := s.snap().sets
	out := make([]models.SetSummary, 0, len(sets))
	for _, set := range sets {
		if excludeOnlineOnly && set.IsOnlineOnly {
			continue
		}
		out = append(out, set)
	}
	return out
}

// View pins the current catalog. Every read through the returned Reader
// sees the same load, even if a reload publishes a new one meanwhile.
func (s *Store) View() Reader {
	return s.snap()
}

func (s *Store) SetByCode(code string) (models.SetSummary, bool) {
	return s.snap().SetByCode(code)
}

func (s *Store) CardsBySetCode(code string) []models.CardRecord {
	return s.snap().CardsBySetCode(code)
}

// Cards returns every card of the published catalog in source order.
func (s *Store) Cards() []models.CardRecord {
	cards := s.snap().cards
	return append(make([]models.CardRecord, 0, len(cards)), cards...)
}

// SetSymbols stores the symbol table. It is kept apart from the card
// snapshot and survives reloads.
func (s *Store) SetSymbols(symbols json.RawMessage) {
	cp := append(json.RawMessage(nil), symbols...)
	s.symbols.Store(&cp)
}

// Symbols returns the symbol table, or nil when none was set.
func (s *Store) Symbols() json.RawMessage {
	p := s.symbols.Load()
	if p == nil {
		return nil
	}
	return *p
}

type Status struct {
	Loaded        bool            `json:"loaded"`
	Loading       bool            `json:"loading"`
	LoadedAt      *time.Time      `json:"loadedAt"`
	LastAttempt   *time.Time      `json:"lastAttempt"`
	LastError     string          `json:"lastError,omitempty"`
	Metadata      models.Metadata `json:"metadata"`
	Sets          int             `json:"sets"`
	Cards         int             `json:"cards"`
	SymbolsLoaded bool            `json:"symbolsLoaded"`
}

func (s *Store) Status() Status {
	st := Status{
		Loading:       s.loading.Load(),
		SymbolsLoaded: s.symbols.Load() != nil,
	}
	if snap := s.current.Load(); snap != nil {
		at := snap.loadedAt
		st.Loaded = true
		st.LoadedAt = &at
		st.Metadata = snap.metadata
		st.Sets = len(snap.sets)
		st.Cards = len(snap.cards)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.lastAttempt.IsZero() {
		at := s.lastAttempt
		st.LastAttempt = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

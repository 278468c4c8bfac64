package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mtgdata/internal/catalog"
)

const defaultHistorySize = 20

type Hub struct {
	mu          sync.Mutex
	clients     map[*websocket.Conn]struct{}
	history     []Event
	historySize int
	log         zerolog.Logger
}

type Stats struct {
	Clients int `json:"clients"`
	Events  int `json:"events"`
}

func NewHub(historySize int, log zerolog.Logger) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Hub{
		clients:     make(map[*websocket.Conn]struct{}),
		historySize: historySize,
		log:         log,
	}
}

// Add replays the recent history to ws and registers it. Writes happen
// under the hub lock so a connection never has two writers.
func (h *Hub) Add(ws *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ev := range h.history {
		_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := ws.WriteJSON(ev); err != nil {
			return err
		}
	}
	h.clients[ws] = struct{}{}
	return nil
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// Publish records ev and writes it to every client. Clients that fail the
// write are dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, ev)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}

	for ws := range h.clients {
		_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.clients, ws)
		}
	}
}

// CatalogHook adapts Publish to catalog.Store.OnLoad.
func (h *Hub) CatalogHook(res catalog.LoadResult) {
	ev := Event{Type: TypeCatalogLoaded, At: res.At}
	if res.Err != nil {
		ev.Type = TypeCatalogLoadFailed
		ev.Error = res.Err.Error()
	} else {
		ev.Version = res.Metadata.Version
		ev.Sets = res.Sets
		ev.Cards = res.Cards
	}
	h.Publish(ev)
}

func (h *Hub) History() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.history...)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Clients: len(h.clients), Events: len(h.history)}
}

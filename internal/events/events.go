// Package events pushes catalog lifecycle events to WebSocket subscribers.
package events

import "time"

const (
	TypeCatalogLoaded     = "catalog.loaded"
	TypeCatalogLoadFailed = "catalog.load_failed"
	TypeArchiveDownloaded = "archive.downloaded"
	TypeSymbolsLoaded     = "symbols.loaded"
)

type Event struct {
	Type    string    `json:"type"`
	Version string    `json:"version,omitempty"`
	Sets    int       `json:"sets,omitempty"`
	Cards   int       `json:"cards,omitempty"`
	Error   string    `json:"error,omitempty"`
	Path    string    `json:"path,omitempty"`
	At      time.Time `json:"at"`
}

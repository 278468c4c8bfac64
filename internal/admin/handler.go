// Package admin exposes the operational HTTP endpoints: data file status,
// archive download and catalog reload.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mtgdata/internal/archive"
	"mtgdata/internal/catalog"
	"mtgdata/internal/events"
	"mtgdata/pkg/database"
)

type Catalog interface {
	Initialize(ctx context.Context) error
	Status() catalog.Status
	SetSymbols(symbols json.RawMessage)
	Reopen(release func() error) error
}

type Archive interface {
	RemoteLastModified(ctx context.Context) (*time.Time, error)
	LocalLastModified() *time.Time
	DownloadCardData(ctx context.Context) (*archive.DownloadResult, error)
	LoadSymbols(ctx context.Context) (json.RawMessage, error)
	IsRunning() bool
}

type Sources interface {
	Files() []database.FileStatus
	Close() error
}

type Publisher interface {
	Publish(ev events.Event)
}

type Handler struct {
	Catalog         Catalog
	Archive         Archive
	Sources         Sources
	Events          Publisher
	DownloadTimeout time.Duration
	log             zerolog.Logger
}

func NewHandler(c Catalog, a Archive, s Sources, p Publisher, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{Catalog: c, Archive: a, Sources: s, Events: p, DownloadTimeout: timeout, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.status)
	rg.GET("/last-modified", h.lastModified)
	// POST /admin/download?reload=true also reloads the catalog
	rg.POST("/download", h.download)
	rg.POST("/load-data", h.loadData)
	rg.POST("/symbols/reload", h.reloadSymbols)
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"catalog":     h.Catalog.Status(),
		"files":       h.Sources.Files(),
		"downloading": h.Archive.IsRunning(),
	})
}

func (h *Handler) lastModified(c *gin.Context) {
	remote, err := h.Archive.RemoteLastModified(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("remote last-modified check failed")
	}
	c.JSON(http.StatusOK, gin.H{
		"lastModifiedRemote": remote,
		"lastModifiedLocal":  h.Archive.LocalLastModified(),
	})
}

func (h *Handler) download(c *gin.Context) {
	ctx := c.Request.Context()
	if h.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.DownloadTimeout)
		defer cancel()
	}

	res, err := h.Archive.DownloadCardData(ctx)
	if errors.Is(err, archive.ErrDownloadInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("card data download failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}

	// waits for a running load; the next open picks up the new files
	if err := h.Catalog.Reopen(h.Sources.Close); err != nil {
		h.log.Warn().Err(err).Msg("close sources after download")
	}
	for _, f := range res.Files {
		h.publish(events.Event{Type: events.TypeArchiveDownloaded, Path: f})
	}

	body := gin.H{"status": "downloaded", "result": res}
	if reload, _ := strconv.ParseBool(c.Query("reload")); reload {
		if err := h.Catalog.Initialize(c.Request.Context()); err != nil {
			h.log.Error().Err(err).Msg("reload after download failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "downloaded but load failed", "result": res})
			return
		}
		body["status"] = "loaded"
		body["catalog"] = h.Catalog.Status()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) loadData(c *gin.Context) {
	if err := h.Catalog.Initialize(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "loaded", "catalog": h.Catalog.Status()})
}

func (h *Handler) reloadSymbols(c *gin.Context) {
	symbols, err := h.Archive.LoadSymbols(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("symbols reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "symbols reload failed"})
		return
	}
	h.Catalog.SetSymbols(symbols)
	h.publish(events.Event{Type: events.TypeSymbolsLoaded})
	c.JSON(http.StatusOK, gin.H{"status": "loaded", "bytes": len(symbols)})
}

func (h *Handler) publish(ev events.Event) {
	if h.Events != nil {
		h.Events.Publish(ev)
	}
}

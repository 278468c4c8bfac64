package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mtgdata/internal/admin"
	"mtgdata/internal/archive"
	"mtgdata/internal/cards"
	"mtgdata/internal/catalog"
	"mtgdata/internal/events"
	"mtgdata/internal/loader"
	"mtgdata/internal/logger"
	"mtgdata/internal/metrics"
	"mtgdata/pkg/database"
	"mtgdata/pkg/utils"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		l := logger.New(logger.Config{})
		l.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	m := metrics.New(prometheus.DefaultRegisterer)

	sources := database.NewManager(database.ConfigFrom(cfg), logger.Component(log, "database"))
	defer sources.Close()

	ld := loader.New(sources, logger.Component(log, "loader"), m)
	store := catalog.New(ld, logger.Component(log, "catalog"), m)
	archiveClient := archive.NewClient(archive.ConfigFrom(cfg), logger.Component(log, "archive"))

	hub := events.NewHub(0, logger.Component(log, "events"))
	store.OnLoad(hub.CatalogHook)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(logger.GinMiddleware(log), metrics.GinMiddleware(m), gin.Recovery())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		st := store.Status()
		stats := hub.Stats()
		if !st.Loaded {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"loading":    st.Loading,
				"last_error": st.LastError,
				"ws_clients": stats.Clients,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"sets":       st.Sets,
			"cards":      st.Cards,
			"ws_clients": stats.Clients,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(router)
	router.GET("/ws", events.WSHandler(hub))

	cardHandler := cards.NewHandler(cards.NewService(store, ld), logger.Component(log, "cards"))
	cardHandler.RegisterRoutes(router.Group(""))

	adminHandler := admin.NewHandler(store, archiveClient, sources, hub, cfg.DownloadTimeout, logger.Component(log, "admin"))
	adminHandler.RegisterRoutes(router.Group("/admin"))

	if cfg.LoadOnStart {
		loadCatalog(store, archiveClient, hub, log)
	}

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	wg.Wait()
	log.Info().Msg("server stopped")
}

// loadCatalog runs the startup load. A failure leaves the server up with an
// empty catalog so the admin endpoints can fetch the data.
func loadCatalog(store *catalog.Store, a *archive.Client, hub *events.Hub, log zerolog.Logger) {
	ctx := context.Background()
	if err := store.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog not loaded at startup; POST /admin/download?reload=true to fetch it")
	}
	symbols, err := a.LoadSymbols(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("symbols not loaded at startup")
		return
	}
	store.SetSymbols(symbols)
	hub.Publish(events.Event{Type: events.TypeSymbolsLoaded})
}

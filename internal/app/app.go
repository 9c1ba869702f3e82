// Package app provides the main application setup and dependency injection.
package app

import (
	"fmt"

	"embedgate/pkg/config"
	"embedgate/pkg/fetch"
	"embedgate/pkg/handlers/api"
	proxyhandlers "embedgate/pkg/handlers/proxy"
	"embedgate/pkg/linker"
	"embedgate/pkg/logging"
	"embedgate/pkg/metadata"
	"embedgate/pkg/metrics"
	"embedgate/pkg/providers"
	"embedgate/pkg/resolver"
	"embedgate/pkg/server"
	"embedgate/pkg/store"
)

// App is the main application container.
type App struct {
	Config    *config.Config
	Log       *logging.Logger
	Registry  *providers.Registry
	Composer  *linker.Composer
	Resolver  *resolver.Resolver
	Store     *store.Store
	Server    *server.Server
	HTTPFetch *fetch.Client
}

// New creates and initializes the application.
func New() (*App, error) {
	cfg := config.Load()

	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing embedgate", "port", cfg.Port, "proxy_enabled", cfg.ProxyEnabled)

	reg := providers.Load(cfg.AnimeProviders, log)
	log.Info("provider registry loaded", "count", reg.Len())

	client := fetch.New(cfg, log)
	res := resolver.New(client, log, cfg.MaxIframeDepth, cfg.FetchTimeout)

	tmdb := metadata.NewTMDBClient(cfg.TMDBBaseURL, cfg.TMDBAPIKey, cfg.MetadataRPS, cfg.MetadataBurst, log)
	anilist := metadata.NewAniListClient(cfg.AniListURL, cfg.MetadataRPS, cfg.MetadataBurst, log)

	composer := linker.New(reg, cfg.ProxyEnabled, cfg.BaseURL, tmdb, anilist, log)

	st, err := store.Open(cfg.DBPath, log)
	if err != nil {
		// The watch store is an optional supporting feature; the proxy
		// itself keeps running without it.
		log.Warn("failed to open watch store, persistence disabled", "error", err)
		st = nil
	}

	srv := server.New(cfg, log)

	proxyHandlers := proxyhandlers.NewHandlers(reg, res, log)
	proxyHandlers.RegisterRoutes(srv.Router())

	apiHandlers := api.NewHandlers(reg, composer, st, log)
	apiHandlers.RegisterRoutes(srv.Router())

	srv.Router().Handle("GET /metrics", metrics.Handler())

	return &App{
		Config:    cfg,
		Log:       log,
		Registry:  reg,
		Composer:  composer,
		Resolver:  res,
		Store:     st,
		Server:    srv,
		HTTPFetch: client,
	}, nil
}

// Run starts the application.
func (a *App) Run() error {
	if !a.Config.ProxyEnabled {
		return fmt.Errorf("proxy is disabled (set PROXY_ENABLED=true)")
	}
	a.Log.Info("starting embedgate server", "port", a.Config.Port, "base_url", a.Config.BaseURL)
	return a.Server.Start()
}

// Shutdown releases application resources.
func (a *App) Shutdown() {
	a.Log.Info("shutting down application")
	if a.Store != nil {
		a.Store.Close()
	}
}

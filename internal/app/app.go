package app

import (
	"context"
	"net/http"

	"crimepatrol/internal/cache"
	"crimepatrol/internal/config"
	"crimepatrol/internal/logger"
	"crimepatrol/internal/repository"
	"crimepatrol/internal/retry"
	"crimepatrol/internal/service"
	"crimepatrol/internal/store"
	"crimepatrol/internal/transport/rest"
	"crimepatrol/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// App wires the relay components together
type App struct {
	Hub       *ws.Hub
	Emergency *service.EmergencyService
	Auth      *service.AuthService
	Orphans   *service.OrphanWatcher
	Stale     *service.StaleMonitor // nil when Redis is disabled
	Durable   *store.Durable
	Handler   http.Handler

	logger *zap.Logger
}

// New builds the application over repo. rdb may be nil, which disables staleness tracking.
func New(cfg config.Config, repo repository.SessionRepo, rdb *redis.Client, l *zap.Logger) *App {
	l = logger.OrNop(l)

	live := store.NewLive(repo, cfg.LiveStoreTimeout)
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.AdminRetryAttempts
	if cfg.AdminRetryBaseDelay > 0 {
		retryCfg.BaseDelay = cfg.AdminRetryBaseDelay
	}
	durable := store.NewDurable(repo, retryCfg, l.Named("store"))

	var liveCache cache.LiveSessionCache
	if rdb != nil {
		liveCache = cache.NewLiveSessionCache(rdb)
	}

	hub := ws.NewHub(l.Named("hub"))
	emergency := service.NewEmergencyService(live, durable, liveCache, l.Named("emergency"))
	emergency.SetBroadcaster(hub)

	orphans := service.NewOrphanWatcher(cfg.DisconnectGrace, l.Named("orphans"))
	orphans.SetBroadcaster(hub)
	hub.SetListener(orphans)

	var stale *service.StaleMonitor
	if liveCache != nil {
		stale = service.NewStaleMonitor(liveCache, live, hub, cfg.StaleAfter, cfg.StaleScanInterval, l.Named("stale"))
	}

	auth := service.NewAuthService(cfg.OperatorUsername, cfg.OperatorPassword, cfg.JWTSecret)
	wsHandler := ws.NewHandler(hub, emergency, rate.Limit(cfg.PingRatePerSec), cfg.PingBurst, l.Named("ws"))

	router := rest.NewRouter(&rest.Container{
		AuthService:      auth,
		EmergencyService: emergency,
		WSHandler:        wsHandler,
		ListCacheTTL:     cfg.ListCacheTTL,
		PostRate:         rate.Limit(cfg.PingRatePerSec),
		PostBurst:        cfg.PingBurst,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
	})

	return &App{
		Hub:       hub,
		Emergency: emergency,
		Auth:      auth,
		Orphans:   orphans,
		Stale:     stale,
		Durable:   durable,
		Handler:   router,
		logger:    l,
	}
}

// Start provisions indexes and launches the background sweep. It returns once
// provisioning finishes; the sweep runs until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if err := a.Durable.EnsureIndexes(ctx); err != nil {
		return err
	}
	if a.Stale != nil {
		go a.Stale.Run(ctx)
	} else {
		a.logger.Warn("redis disabled, stale sessions will not be reported")
	}
	return nil
}

// Close stops pending grace timers and disconnects every client
func (a *App) Close() {
	a.Orphans.Stop()
	a.Hub.Stop()
}

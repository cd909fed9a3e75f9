package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pokerdice/apps/server/internal/api"
	"pokerdice/apps/server/internal/auth"
	"pokerdice/apps/server/internal/config"
	"pokerdice/apps/server/internal/gateway"
	"pokerdice/apps/server/internal/ledger"
	"pokerdice/apps/server/internal/lobby"
	"pokerdice/apps/server/internal/logger"
	"pokerdice/apps/server/internal/room"
	"pokerdice/apps/server/internal/store"
	"pokerdice/match"
)

const reapInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", false)
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	defer logger.Sync()
	log := logger.Get()

	ledgerService, ledgerMode, err := ledger.NewService(ledger.Options{
		Mode:      cfg.LedgerMode,
		DSN:       cfg.LedgerDSN,
		LocalPath: cfg.LocalDatabasePath,
	})
	if err != nil {
		logger.Fatal("failed to init ledger service", zap.Error(err))
	}
	defer ledgerService.Close()
	if cfg.StartingBalance > 0 {
		ledgerService = ledger.WithStartingBalance(ledgerService, cfg.StartingBalance)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repo, storeMode, err := store.New(ctx, store.Options{
		Mode:          cfg.StoreMode,
		DatabaseURL:   cfg.DatabaseURL,
		LocalPath:     cfg.LocalDatabasePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		CacheSize:     cfg.MatchCacheSize,
	})
	if err != nil {
		logger.Fatal("failed to init match store", zap.Error(err))
	}
	defer repo.Close()

	var lby *lobby.Lobby
	hub := gateway.New(snapshotSource(func(id string) (*match.MatchState, error) { return lby.Snapshot(id) }))
	lby = lobby.New(lobby.Config{
		Match: cfg.Match,
		Room:  room.Config{TurnTimeout: cfg.TurnTimeout},
	}, ledgerService, repo, hub)
	lby.AddGameEndHook(func(info room.GameEndInfo) {
		log.Info("game ended",
			zap.String("match_id", info.MatchID),
			zap.Uint64("winner_id", uint64(info.Event.WinnerID)),
			zap.Int("total_points", info.Event.TotalPoints),
			zap.Int("rounds", info.Snapshot.TotalRounds))
	})
	defer lby.Close()

	if n, err := lby.Recover(ctx); err != nil {
		log.Error("some matches could not be recovered", zap.Int("recovered", n), zap.Error(err))
	}
	go lby.Run(ctx, reapInterval)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", gin.WrapF(hub.HandleWebSocket))
	apiHandler := api.NewHandler(lby)
	if cfg.AuthMode != "none" {
		authService, authMode, err := auth.NewService(auth.Options{
			Mode:       cfg.AuthMode,
			LocalPath:  cfg.LocalDatabasePath,
			SessionTTL: cfg.SessionTTL,
		})
		if err != nil {
			logger.Fatal("failed to init auth service", zap.Error(err))
		}
		defer authService.Close()
		authHandler := auth.NewHTTPHandler(authService)
		authHandler.RegisterRoutes(r)
		apiHandler.WithIdentity(authHandler)
		log.Info("session auth enabled", zap.String("auth_mode", authMode))
	}
	apiHandler.RegisterRoutes(r)
	ledger.NewHTTPHandler(ledgerService).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	go func() {
		log.Info("server started",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("ledger_mode", ledgerMode),
			zap.String("store_mode", storeMode),
			zap.Duration("turn_timeout", cfg.TurnTimeout))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

type snapshotSource func(id string) (*match.MatchState, error)

func (f snapshotSource) Snapshot(id string) (*match.MatchState, error) { return f(id) }

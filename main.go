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

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/api"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/config"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/game"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/memory"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/redis"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/ai"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/story"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/storage"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("STORYCHAT_CONFIG"))
	if err != nil {
		log.FromCtx(context.Background()).Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, closeLog := log.NewContextWithLogger(ctx, cfg.BasicConfig.Debug)
	defer closeLog()
	logger := log.FromCtx(ctx)

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.FromCtx(ctx)
	dbType := cfg.BasicConfig.Database
	logger.Info().Str("database", dbType).Msg("opening database")

	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return err
	}

	stories := story.NewService(db)
	if cfg.BasicConfig.SeedDemo {
		n, err := stories.SeedDemo(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info().Int("stories", n).Msg("demo stories seeded")
		}
	}

	var (
		store   memory.Store = memory.NewSQLStore(db)
		workers []worker.Option
	)
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = memory.NewCachedStore(store, rdb, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		workers = append(workers, worker.WithRedis(rdb))
	}

	g := cfg.Game
	provCfg := cfg.Providers[g.Provider]
	model, err := ai.NewChatGenerator(ctx, g.Provider, provCfg.Model, provCfg)
	if err != nil {
		return err
	}
	engine := game.NewOrchestrator(stories, stories, store, model, game.Config{
		ForgetThreshold:   g.ForgetThreshold,
		ModelTimeout:      time.Duration(g.ModelTimeout) * time.Second,
		MemoryConcurrency: g.MemoryConcurrency,
		RefreshPersona:    true,
	})

	manager := worker.NewManager(ctx, worker.Config{
		QueueSize:   g.QueueSize,
		IdleTimeout: time.Duration(g.WorkerIdle) * time.Second,
	}, workers...)
	defer manager.Close()

	if !cfg.BasicConfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.NewHandler(stories, engine, manager, time.Duration(g.TurnTimeout)*time.Second).RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("provider", g.Provider).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

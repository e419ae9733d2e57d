// Package app assembles the K-line service's dependency graph (the
// Postgres connection, the per-resolution repositories, the calendar,
// vendor adapters, router and read-through reader) behind a thin gin
// HTTP wrapper. The wrapper's routes are deliberately minimal: the full
// REST surface lives in a separate service, so this exposes just enough
// to drive the reader end to end.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aklineservice/internal/calendar"
	readerpkg "aklineservice/internal/reader"
	"aklineservice/internal/registry"
	"aklineservice/internal/repository/postgres"
	"aklineservice/internal/router"
	"aklineservice/internal/trading/config"
	"aklineservice/internal/vendors/bulk"
	"aklineservice/internal/vendors/intraday"
	"aklineservice/pkg/cache"
	"aklineservice/pkg/database"
	"aklineservice/pkg/log"
)

// App wires the K-line service's dependency graph and exposes Run as the
// process lifecycle entry point.
type App struct {
	cfg        *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	dbCleanup  func()
	reader     *readerpkg.Reader
	bulk       *bulk.Adapter
}

// NewApp loads configuration, connects to Postgres, applies schema
// migrations and wires the full dependency graph into a Reader behind a
// gin router.
func NewApp() *App {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: %v", err)
	}
	log.Info("configuration loaded successfully")

	zapLogger, _ := zap.NewProduction()

	dbCfg := database.Config{
		Host:                  cfg.Database.Host,
		Port:                  cfg.Database.Port,
		User:                  cfg.Database.User,
		Password:              cfg.Database.Password,
		Name:                  cfg.Database.Name,
		SSLMode:               cfg.Database.SSLMode,
		MaxOpenConnections:    cfg.Database.MaxOpenConnections,
		MaxIdleConnections:    cfg.Database.MaxIdleConnections,
		MaxConnectionLifeTime: cfg.Database.MaxConnectionLifeTime,
	}

	dbConn, cleanup, err := database.Open(ctx, zapLogger, dbCfg)
	if err != nil {
		log.Fatal("unable to connect to database: %v", err)
	}

	migrationHandler := database.NewMigrationHandler(dbCfg, zapLogger)
	log.Info("applying schema migrations")
	if err := migrationHandler.ApplyMigrations(); err != nil {
		log.Fatal("failed to apply database migrations: %v", err)
	}

	candleRepo := postgres.NewCandleRepository(dbConn.SQLX)
	intradayRepo := postgres.NewIntradayRepository(dbConn.SQLX)
	registryRepo := postgres.NewRegistryRepository(dbConn.GORM)

	cal := calendar.New()

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
	}
	cacheMgr := cache.NewManager(gocache.New(cfg.Cache.InMemTTL, cfg.Cache.InMemCleanup), redisClient)
	cachedRegistry := registry.NewCachedRegistry(registryRepo, cacheMgr)

	bulkSession := bulk.NewHTTPSession(cfg.Bulk.BaseURL, cfg.Bulk.Username, cfg.Bulk.Password, cfg.Bulk.Timeout)
	bulkAdapter := bulk.New(bulkSession, cfg.Bulk.RatePerSecond, cfg.Bulk.Burst)

	intradayClient := intraday.NewHTTPClient(cfg.Intraday.BaseURL, cfg.Intraday.Timeout)
	intradayAdapter := intraday.New(intradayClient)

	rtr := router.New(candleRepo, intradayRepo, candleRepo, intradayAdapter, nil)
	rdr := readerpkg.New(candleRepo, intradayRepo, cal, cachedRegistry, bulkAdapter, rtr, nil)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLoggerMiddleware())

	a := &App{cfg: cfg, engine: engine, dbCleanup: cleanup, reader: rdr, bulk: bulkAdapter}
	a.registerRoutes()

	return a
}

// Run starts the HTTP listener and blocks until the process receives a
// shutdown signal, then drains in-flight requests and closes the
// database pool.
func (a *App) Run() error {
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.Server.Port),
		Handler:      a.engine,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("kline service listening on :%s", a.cfg.Server.Port)
		serverErrors <- a.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-shutdown:
		log.Info("shutting down server gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.httpServer.Close()
			a.teardown(ctx)
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		a.teardown(ctx)
	}

	return nil
}

// teardown closes the vendor session and the database pool. The vendor
// session belongs to the process, not to individual reads, so logout
// happens exactly once, here.
func (a *App) teardown(ctx context.Context) {
	if a.bulk != nil {
		if err := a.bulk.Logout(ctx); err != nil {
			log.Warn("bulk vendor logout on shutdown failed: %v", err)
		}
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
}

// requestLoggerMiddleware logs each request's method, path, status and
// latency.
func requestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request handled: %s %s | status=%d | latency=%v",
			c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

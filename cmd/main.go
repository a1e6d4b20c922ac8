package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	c "github.com/fjod/go_cart/cart-engine/internal/cache"
	"github.com/fjod/go_cart/cart-engine/internal/catalog"
	"github.com/fjod/go_cart/cart-engine/internal/config"
	h "github.com/fjod/go_cart/cart-engine/internal/http"
	"github.com/fjod/go_cart/cart-engine/internal/logger"
	"github.com/fjod/go_cart/cart-engine/internal/metrics"
	"github.com/fjod/go_cart/cart-engine/internal/notify"
	"github.com/fjod/go_cart/cart-engine/internal/poller"
	"github.com/fjod/go_cart/cart-engine/internal/pricing"
	"github.com/fjod/go_cart/cart-engine/internal/repository"
	s "github.com/fjod/go_cart/cart-engine/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	// Set up MongoDB connection
	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		zl.Fatal("failed to connect to MongoDB", zap.Error(err))
	}

	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		zl.Fatal("failed to create indexes", zap.Error(err))
	}
	zl.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zl.Fatal("redis connection failed", zap.Error(err))
	}
	zl.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	cat, closeCatalog, err := newCatalog(cfg)
	if err != nil {
		zl.Fatal("failed to set up catalog", zap.String("mode", cfg.CatalogMode), zap.Error(err))
	}
	defer func() {
		if err := closeCatalog(); err != nil {
			zl.Warn("error closing catalog", zap.Error(err))
		}
	}()
	zl.Info("catalog ready", zap.String("mode", cfg.CatalogMode))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	calc := pricing.NewCalculator(pricing.Rules{
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		StandardDeliveryFee:   cfg.StandardDeliveryFee,
		MinOrderAmount:        cfg.MinOrderAmount,
	})
	carts := s.NewCartService(repo, c.NewRedisCache(redisClient), calc, cfg.MaxCartItems, m, zl)

	var notifier s.StaleItemNotifier = notify.NewLogNotifier(zl)
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.EventsTopic, cfg.KafkaBrokers...)
		defer func() {
			if err := kn.Close(); err != nil {
				zl.Warn("error closing notifier", zap.Error(err))
			}
		}()
		notifier = kn
	}

	revalidator := s.NewRevalidator(cat, cfg.ValidationInterval, zl,
		s.WithNotifier(notifier),
		s.WithRevalidationMetrics(m))
	promos := s.NewPromoManager(cat, m, zl)

	handler := h.NewCartHandler(carts, promos, revalidator, m, zl, cfg.RequestTimeout)
	router := h.NewRouter(h.RouterConfig{
		Handler:        handler,
		Sessions:       h.NewSessionStore(cfg.SessionSecret, !cfg.Development),
		Gatherer:       reg,
		Logger:         zl,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "cart-engine"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	go carts.RunEvictor(bgCtx, cfg.SessionSweepInterval, cfg.SessionIdleTimeout)

	var p *poller.Poller
	if len(cfg.KafkaBrokers) > 0 {
		p = poller.NewPoller(carts, zl, cfg.OutboxTopic, cfg.ConsumerGroup, cfg.KafkaBrokers...)
		go p.Run(bgCtx)
		zl.Info("checkout outbox poller started", zap.String("topic", cfg.OutboxTopic))
	}

	go func() {
		zl.Info("cart engine starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down cart engine...")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	stopBackground()
	if p != nil {
		p.Close()
	}
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		zl.Warn("error disconnecting from MongoDB", zap.Error(err))
	}
	zl.Info("cart engine stopped")
}

// newCatalog builds the catalog client for the configured mode and returns its
// close function.
func newCatalog(cfg *config.Config) (catalog.Catalog, func() error, error) {
	switch cfg.CatalogMode {
	case config.CatalogHTTP:
		return catalog.NewHTTPClient(cfg.CatalogURL, cfg.RequestTimeout), func() error { return nil }, nil

	case config.CatalogGRPC:
		conn, err := grpc.NewClient(
			cfg.CatalogGRPCAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to catalog: %w", err)
		}
		return catalog.NewGRPCClient(conn), conn.Close, nil

	case config.CatalogSQLite:
		sc, err := catalog.NewSQLiteCatalog(cfg.CatalogSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sc.RunMigrations(); err != nil {
			_ = sc.Close()
			return nil, nil, fmt.Errorf("migrate catalog: %w", err)
		}
		return sc, sc.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown catalog mode %q", cfg.CatalogMode)
}

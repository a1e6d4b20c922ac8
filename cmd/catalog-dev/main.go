// Command catalog-dev serves a local SQLite product catalog over gRPC and
// HTTP, so the cart engine can run without the real catalog backend.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/catalog"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/logger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	zl, err := logger.New(true)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	dbPath := getEnv("CATALOG_SQLITE_PATH", "catalog.db")
	grpcAddr := getEnv("GRPC_PORT", ":50051")
	httpAddr := getEnv("HTTP_PORT", ":8081")

	cat, err := catalog.NewSQLiteCatalog(dbPath)
	if err != nil {
		zl.Fatal("failed to open catalog", zap.Error(err))
	}
	defer cat.Close()

	if err := cat.RunMigrations(); err != nil {
		zl.Fatal("failed to run migrations", zap.Error(err))
	}
	zl.Info("migrations completed successfully", zap.String("db", dbPath))

	if getEnv("SEED", "true") == "true" {
		seed(context.Background(), cat, zl)
	}

	grpcServer := catalog.NewGRPCServer(cat, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		zl.Fatal("failed to listen", zap.String("addr", grpcAddr), zap.Error(err))
	}
	go func() {
		zl.Info("catalog gRPC listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(listener); err != nil {
			zl.Fatal("failed to serve gRPC", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           otelhttp.NewHandler(catalog.NewHTTPHandler(cat, zl), "catalog-dev"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zl.Info("catalog HTTP listening", zap.String("addr", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down catalog...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
}

func seed(ctx context.Context, cat *catalog.SQLiteCatalog, zl *zap.Logger) {
	products := []catalog.Product{
		{ID: 1, Name: "Pasta Carbonara", Price: decimal.RequireFromString("300")},
		{ID: 2, Name: "Caesar Salad", Price: decimal.RequireFromString("150")},
		{ID: 3, Name: "Tomato Soup", Price: decimal.RequireFromString("120")},
		{ID: 4, Name: "Pizza Margherita", Price: decimal.RequireFromString("450")},
		{ID: 40, Name: "Chocolate Cookie", Price: decimal.RequireFromString("60")},
	}
	for _, p := range products {
		if err := cat.UpsertProduct(ctx, p, true); err != nil {
			zl.Fatal("failed to seed product", zap.Int64("product_id", p.ID), zap.Error(err))
		}
	}

	cookie := int64(40)
	promos := []catalog.PromoCode{
		{Code: "SAVE10", DiscountType: domain.DiscountPercent, DiscountValue: decimal.NewFromInt(10), Active: true},
		{Code: "MINUS100", DiscountType: domain.DiscountFixedAmount, DiscountValue: decimal.NewFromInt(100), MinOrderAmount: decimal.NewFromInt(500), Active: true},
		{Code: "COOKIE", DiscountType: domain.DiscountFreeProduct, GrantedProductID: &cookie, Active: true},
	}
	for _, p := range promos {
		p.StartsAt = time.Now().Add(-time.Hour)
		if err := cat.CreatePromo(ctx, p); err != nil {
			// already seeded by an earlier run
			zl.Debug("promo not seeded", zap.String("code", p.Code), zap.Error(err))
		}
	}
	zl.Info("catalog seeded", zap.Int("products", len(products)), zap.Int("promos", len(promos)))
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront-orders/internal/api"
	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/observability"
	"github.com/example/storefront-orders/internal/query"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[API] Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting order service",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("order_store", cfg.Store.Backend),
		zap.String("cart_store", cfg.Cart.Backend),
		zap.String("notifier", cfg.Notifier.Backend),
		zap.Strings("gateways", cfg.Payment.Gateways),
	)

	orders, closeOrders, err := openOrderStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open order store", zap.Error(err))
	}
	defer closeOrders()

	cartStore, closeCarts, err := openCartStore(ctx, cfg.Cart)
	if err != nil {
		logger.Fatal("failed to open cart store", zap.Error(err))
	}
	defer closeCarts()

	gateways, err := buildGateways(cfg, logger)
	if err != nil {
		logger.Fatal("failed to configure payment gateways", zap.Error(err))
	}

	notifier, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	carts := cart.NewService(cartStore, logger.Named("cart"))
	cmdHandler := command.NewHandler(carts, orders, gateways, notifier, command.Options{
		Pricing: order.PricingPolicy{
			ShippingFlat:     cfg.Pricing.ShippingFlat,
			FreeShippingOver: cfg.Pricing.FreeShippingOver,
			TaxRate:          cfg.Pricing.TaxRate,
		},
		Currency:    cfg.Payment.Currency,
		FrontendURL: cfg.HTTP.FrontendURL,
	}, logger.Named("orders"))
	queryHandler := query.NewHandler(orders, logger.Named("query"))

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)

	handlers := api.NewHandlers(carts, cmdHandler, queryHandler, logger.Named("api"))
	router := api.NewRouter(handlers, jwtService, api.RouterConfig{
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, logger.Named("http"))

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/email"
	"github.com/example/storefront-orders/internal/infrastructure/cache"
	"github.com/example/storefront-orders/internal/infrastructure/kafka"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/example/storefront-orders/internal/notification"
	"github.com/example/storefront-orders/internal/payment"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func openOrderStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.OrderStore, func(), error) {
	switch cfg.Backend {
	case "postgres":
		db, err := store.ConnectPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.MigratePostgres(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return store.NewPostgresOrderStore(db), func() { db.Close() }, nil

	case "mongo":
		db, err := store.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewMongoOrderStore(db)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDatabase))
		return s, func() { _ = db.Client().Disconnect(context.Background()) }, nil

	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		logger.Info("using DynamoDB", zap.String("table", cfg.DynamoTable))
		return store.NewDynamoOrderStore(client, cfg.DynamoTable, cfg.DynamoUserIndex), func() {}, nil

	default:
		logger.Warn("using in-memory order store; orders are lost on restart")
		return store.NewMemoryOrderStore(), func() {}, nil
	}
}

func openCartStore(ctx context.Context, cfg config.CartConfig) (cart.Store, func(), error) {
	if cfg.Backend != "redis" {
		return cache.NewMemoryCartStore(cfg.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return cache.NewRedisCartStore(client, cfg.TTL), func() { client.Close() }, nil
}

func buildGateways(cfg *config.Config, logger *zap.Logger) ([]payment.Gateway, error) {
	guard := payment.GuardConfig{
		Timeout:     cfg.Payment.Timeout,
		MaxFailures: cfg.Payment.MaxFailures,
		OpenTimeout: cfg.Payment.OpenTimeout,
	}

	gateways := make([]payment.Gateway, 0, len(cfg.Payment.Gateways))
	for _, name := range cfg.Payment.Gateways {
		var gw payment.Gateway
		switch name {
		case "paypal":
			pp, err := payment.NewPayPal(payment.PayPalConfig{
				ClientID:     cfg.PayPal.ClientID,
				ClientSecret: cfg.PayPal.ClientSecret,
				Mode:         cfg.PayPal.Mode,
				WebhookID:    cfg.PayPal.WebhookID,
			})
			if err != nil {
				return nil, err
			}
			gw = pp
		case "stripe":
			st, err := payment.NewStripe(payment.StripeConfig{
				APIKey:        cfg.Stripe.APIKey,
				WebhookSecret: cfg.Stripe.WebhookSecret,
			})
			if err != nil {
				return nil, err
			}
			gw = st
		case "fake":
			logger.Warn("fake payment gateway enabled; every payment is approved")
			gw = payment.NewFake()
		default:
			return nil, fmt.Errorf("unknown payment gateway %q", name)
		}
		gateways = append(gateways, payment.NewGuarded(gw, guard, logger.Named("payment")))
	}
	return gateways, nil
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) (notification.Notifier, func()) {
	logNotifier := notification.NewLogNotifier(logger.Named("notification"))

	switch cfg.Notifier.Backend {
	case "kafka":
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		return notification.Multi{logNotifier, notification.NewKafkaNotifier(producer)}, func() { producer.Close() }
	case "email":
		mailer := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		return notification.Multi{logNotifier, notification.NewEmailNotifier(mailer)}, func() {}
	default:
		return logNotifier, func() {}
	}
}

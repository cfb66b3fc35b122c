package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"

	"ticketing/config"
	"ticketing/db"
	"ticketing/gateway"
	"ticketing/pkg"
	"ticketing/service"
	"ticketing/tracing"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	logLevel := logrus.InfoLevel
	if cfg.Debug {
		logLevel = logrus.DebugLevel
	}
	log.Init(logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	traceProvider, err := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := traceProvider.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("Could not shutdown trace provider")
		}
	}()

	dbConn, err := db.Open(cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	defer dbConn.Close()

	redisClient := pkg.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	httpClient := tracing.NewHTTPClient()

	stripeClient := gateway.NewStripeClient(
		gateway.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			PublicURL:     cfg.PublicURL,
			Currency:      cfg.Currency,
		},
		gateway.NewStripeBackends(httpClient),
	)

	svc, err := service.New(
		service.Config{
			HTTPAddr:              cfg.HTTPAddr,
			SessionSecret:         cfg.SessionSecret,
			IdentityWebhookSecret: cfg.Clerk.WebhookSecret,
		},
		dbConn,
		redisClient,
		stripeClient,
		stripeClient,
		gateway.NewClerkClient(cfg.Clerk.SecretKey, cfg.Clerk.APIURL, httpClient),
		gateway.NewPubNubNotifier(cfg.PubNub.PublishKey, cfg.PubNub.SubscribeKey),
	)
	if err != nil {
		panic(err)
	}

	if err := svc.Run(ctx); err != nil {
		panic(err)
	}
}

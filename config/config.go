package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"address the HTTP API listens on"`
	PostgresURL string `long:"postgres-url" env:"POSTGRES_URL" required:"true" description:"postgres connection string"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" required:"true" description:"redis host:port"`
	PublicURL   string `long:"public-url" env:"PUBLIC_URL" default:"http://localhost:3000" description:"base URL checkout redirects return to"`
	Currency    string `long:"currency" env:"CURRENCY" default:"usd" description:"currency of ticket prices"`

	SessionSecret string `long:"session-secret" env:"SESSION_SECRET" required:"true" description:"HS256 secret of session tokens"`

	Stripe struct {
		SecretKey     string `long:"secret-key" env:"SECRET_KEY" required:"true"`
		WebhookSecret string `long:"webhook-secret" env:"WEBHOOK_SECRET" required:"true"`
	} `group:"stripe" namespace:"stripe" env-namespace:"STRIPE"`

	Clerk struct {
		SecretKey     string `long:"secret-key" env:"SECRET_KEY"`
		APIURL        string `long:"api-url" env:"API_URL" description:"Clerk API base URL without /v1"`
		WebhookSecret string `long:"webhook-secret" env:"WEBHOOK_SECRET" required:"true"`
	} `group:"clerk" namespace:"clerk" env-namespace:"CLERK"`

	PubNub struct {
		PublishKey   string `long:"publish-key" env:"PUBLISH_KEY"`
		SubscribeKey string `long:"subscribe-key" env:"SUBSCRIBE_KEY"`
	} `group:"pubnub" namespace:"pubnub" env-namespace:"PUBNUB"`

	JaegerEndpoint string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"collector endpoint, tracing export is off when empty"`
	Debug          bool   `long:"debug" env:"DEBUG"`
}

// Load reads .env when present, then flags and the environment. Flags win over the environment.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("could not load .env: %w", err)
	}

	var cfg Config
	if _, err := flags.NewParser(&cfg, flags.Default).ParseArgs(args); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}

	return cfg, nil
}

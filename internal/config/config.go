package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	HTTP     HTTPConfig     `envconfig:"HTTP"`
	JWT      JWTConfig      `envconfig:"JWT"`
	Store    StoreConfig    `envconfig:"STORE"`
	Cart     CartConfig     `envconfig:"CART"`
	Kafka    KafkaConfig    `envconfig:"KAFKA"`
	Notifier NotifierConfig `envconfig:"NOTIFIER"`
	SMTP     SMTPConfig     `envconfig:"SMTP"`
	Payment  PaymentConfig  `envconfig:"PAYMENT"`
	PayPal   PayPalConfig   `envconfig:"PAYPAL"`
	Stripe   StripeConfig   `envconfig:"STRIPE"`
	Pricing  PricingConfig  `envconfig:"PRICING"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	FrontendURL     string        `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
}

type JWTConfig struct {
	Secret string        `envconfig:"SECRET" required:"true"`
	Issuer string        `envconfig:"ISSUER"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"15m"`
}

// StoreConfig selects the order store backend.
type StoreConfig struct {
	Backend         string `envconfig:"BACKEND" default:"memory"`
	PostgresURL     string `envconfig:"POSTGRES_URL"`
	MongoURI        string `envconfig:"MONGO_URI"`
	MongoDatabase   string `envconfig:"MONGO_DATABASE" default:"storefront"`
	DynamoTable     string `envconfig:"DYNAMO_TABLE" default:"orders"`
	DynamoUserIndex string `envconfig:"DYNAMO_USER_INDEX" default:"user_id-index"`
	DynamoRegion    string `envconfig:"DYNAMO_REGION" default:"us-east-1"`
	DynamoEndpoint  string `envconfig:"DYNAMO_ENDPOINT"`
}

type CartConfig struct {
	Backend       string        `envconfig:"BACKEND" default:"memory"`
	TTL           time.Duration `envconfig:"TTL" default:"168h"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"TOPIC" default:"order-notifications"`
	GroupID string   `envconfig:"GROUP_ID" default:"order-notifier"`
}

// NotifierConfig selects where the API sends notifications: "log",
// "kafka" or "email".
type NotifierConfig struct {
	Backend string `envconfig:"BACKEND" default:"log"`
}

type SMTPConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"587"`
	From     string `envconfig:"FROM" default:"orders@example.com"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
}

type PaymentConfig struct {
	Gateways    []string      `envconfig:"GATEWAYS" default:"fake"`
	Currency    string        `envconfig:"CURRENCY" default:"USD"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"10s"`
	MaxFailures uint32        `envconfig:"MAX_FAILURES" default:"5"`
	OpenTimeout time.Duration `envconfig:"OPEN_TIMEOUT" default:"30s"`
}

type PayPalConfig struct {
	ClientID     string `envconfig:"CLIENT_ID"`
	ClientSecret string `envconfig:"CLIENT_SECRET"`
	Mode         string `envconfig:"MODE" default:"sandbox"`
	WebhookID    string `envconfig:"WEBHOOK_ID"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"API_KEY"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

type PricingConfig struct {
	ShippingFlat     decimal.Decimal `envconfig:"SHIPPING_FLAT" default:"5.00"`
	FreeShippingOver decimal.Decimal `envconfig:"FREE_SHIPPING_OVER" default:"0"`
	TaxRate          decimal.Decimal `envconfig:"TAX_RATE" default:"0.08"`
}

var (
	storeBackends    = []string{"memory", "postgres", "mongo", "dynamo"}
	cartBackends     = []string{"memory", "redis"}
	notifierBackends = []string{"log", "kafka", "email"}
	gatewayNames     = []string{"fake", "paypal", "stripe"}
)

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings envconfig cannot express with tags.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters long"))
	}
	if !slices.Contains(storeBackends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of %v", c.Store.Backend, storeBackends))
	}
	switch c.Store.Backend {
	case "postgres":
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("STORE_POSTGRES_URL is required for the postgres backend"))
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("STORE_MONGO_URI is required for the mongo backend"))
		}
	}
	if !slices.Contains(cartBackends, c.Cart.Backend) {
		errs = append(errs, fmt.Errorf("CART_BACKEND %q is not one of %v", c.Cart.Backend, cartBackends))
	}
	if !slices.Contains(notifierBackends, c.Notifier.Backend) {
		errs = append(errs, fmt.Errorf("NOTIFIER_BACKEND %q is not one of %v", c.Notifier.Backend, notifierBackends))
	}

	if len(c.Payment.Gateways) == 0 {
		errs = append(errs, errors.New("PAYMENT_GATEWAYS must name at least one gateway"))
	}
	for _, name := range c.Payment.Gateways {
		switch name {
		case "paypal":
			if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
				errs = append(errs, errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required for paypal"))
			}
			if c.PayPal.WebhookID == "" {
				errs = append(errs, errors.New("PAYPAL_WEBHOOK_ID is required for paypal"))
			}
		case "stripe":
			if c.Stripe.APIKey == "" {
				errs = append(errs, errors.New("STRIPE_API_KEY is required for stripe"))
			}
			if c.Stripe.WebhookSecret == "" {
				errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required for stripe"))
			}
		default:
			if !slices.Contains(gatewayNames, name) {
				errs = append(errs, fmt.Errorf("unknown payment gateway %q", name))
			}
		}
	}

	if c.Pricing.ShippingFlat.IsNegative() || c.Pricing.TaxRate.IsNegative() || c.Pricing.FreeShippingOver.IsNegative() {
		errs = append(errs, errors.New("pricing values must not be negative"))
	}

	return errors.Join(errs...)
}

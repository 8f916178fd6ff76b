package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config is loaded from environment variables at startup. Defaults target a
// local development setup; production overrides everything sensitive.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Postgres
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"orders"`
	Migrations string `envconfig:"MIGRATIONS_PATH" default:"./migrations"`

	// Redis, used for OTP tickets
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	OTPTTLSeconds int    `envconfig:"OTP_TTL_SECONDS" default:"300"`

	// Kafka, used for outbound notification events
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"order-notifications"`

	// Payment gateway
	GatewayBaseURL       string `envconfig:"GATEWAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	GatewayKeyID         string `envconfig:"GATEWAY_KEY_ID" required:"true"`
	GatewayKeySecret     string `envconfig:"GATEWAY_KEY_SECRET" required:"true"`
	GatewayWebhookSecret string `envconfig:"GATEWAY_WEBHOOK_SECRET" required:"true"`

	// Sessions and admin access
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	AdminKey     string `envconfig:"ADMIN_KEY" required:"true"`
	SessionHours int    `envconfig:"SESSION_HOURS" default:"72"`

	// Checkout verification. When false, a price mismatch is logged and the
	// server-computed total is used; when true the checkout is rejected.
	PriceMismatchHardFail bool    `envconfig:"PRICE_MISMATCH_HARD_FAIL" default:"false"`
	ShippingFee           float64 `envconfig:"SHIPPING_FEE" default:"99"`
	FreeShippingAbove     float64 `envconfig:"FREE_SHIPPING_ABOVE" default:"1999"`

	// Refund retry sweep
	RefundSweepSeconds int `envconfig:"REFUND_SWEEP_SECONDS" default:"600"`
	RefundSweepBatch   int `envconfig:"REFUND_SWEEP_BATCH" default:"50"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package config

import (
	"log"
	"time"

	"tutorbook/models"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Storage.
	StoreDriver  string `mapstructure:"STORE_DRIVER"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisLockDB   int    `mapstructure:"REDIS_LOCK_DB"`
	RedisTaskDB   int    `mapstructure:"REDIS_TASK_DB"`

	// Notification broker.
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	NotifyExchange string `mapstructure:"NOTIFY_EXCHANGE"`

	// Payment provider.
	PaymentProvider     string `mapstructure:"PAYMENT_PROVIDER"`
	StripeKey           string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PaymentChecksumKey  string `mapstructure:"PAYMENT_CHECKSUM_KEY"`
	PaymentCheckoutURL  string `mapstructure:"PAYMENT_CHECKOUT_URL"`
	PaymentReturnURL    string `mapstructure:"PAYMENT_RETURN_URL"`
	PaymentCancelURL    string `mapstructure:"PAYMENT_CANCEL_URL"`
	Currency            string `mapstructure:"CURRENCY"`

	// Marketplace policy.
	PlatformFeeBps        int64  `mapstructure:"PLATFORM_FEE_BPS"`
	CancelWindowHours     int    `mapstructure:"CANCEL_WINDOW_HOURS"`
	PartialRefundPercent  int64  `mapstructure:"PARTIAL_REFUND_PERCENT"`
	PaymentTimeoutMinutes int    `mapstructure:"PAYMENT_TIMEOUT_MINUTES"`
	CompletionGraceHours  int    `mapstructure:"COMPLETION_GRACE_HOURS"`
	DisputeWindowHours    int    `mapstructure:"DISPUTE_WINDOW_HOURS"`
	MinWithdrawal         int64  `mapstructure:"MIN_WITHDRAWAL"`
	ListHorizonDays       int    `mapstructure:"LIST_HORIZON_DAYS"`
	SweepSchedule         string `mapstructure:"SWEEP_SCHEDULE"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 200)

	viper.SetDefault("STORE_DRIVER", "mongo")
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "tutorbook")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_LOCK_DB", 1)
	viper.SetDefault("REDIS_TASK_DB", 2)

	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("NOTIFY_EXCHANGE", "tutorbook.events")

	viper.SetDefault("PAYMENT_PROVIDER", "stripe")
	viper.SetDefault("STRIPE_KEY", "")
	viper.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	viper.SetDefault("PAYMENT_CHECKSUM_KEY", "")
	viper.SetDefault("PAYMENT_CHECKOUT_URL", "http://localhost:8081/checkout")
	viper.SetDefault("PAYMENT_RETURN_URL", "http://localhost:3000/payment/return")
	viper.SetDefault("PAYMENT_CANCEL_URL", "http://localhost:3000/payment/cancel")
	viper.SetDefault("CURRENCY", "vnd")

	viper.SetDefault("PLATFORM_FEE_BPS", 1000)
	viper.SetDefault("CANCEL_WINDOW_HOURS", 24)
	viper.SetDefault("PARTIAL_REFUND_PERCENT", 50)
	viper.SetDefault("PAYMENT_TIMEOUT_MINUTES", 15)
	viper.SetDefault("COMPLETION_GRACE_HOURS", 24)
	viper.SetDefault("DISPUTE_WINDOW_HOURS", 24)
	viper.SetDefault("MIN_WITHDRAWAL", 50000)
	viper.SetDefault("LIST_HORIZON_DAYS", 60)
	viper.SetDefault("SWEEP_SCHEDULE", "@every 1m")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

// Policy projects the policy keys into the value services are built with.
func Policy() models.Policy {
	c := AppConfig
	return models.Policy{
		Currency:             c.Currency,
		PlatformFeeBps:       c.PlatformFeeBps,
		CancelWindow:         time.Duration(c.CancelWindowHours) * time.Hour,
		PartialRefundPercent: c.PartialRefundPercent,
		PaymentTimeout:       time.Duration(c.PaymentTimeoutMinutes) * time.Minute,
		CompletionGrace:      time.Duration(c.CompletionGraceHours) * time.Hour,
		DisputeWindow:        time.Duration(c.DisputeWindowHours) * time.Hour,
		MinWithdrawal:        c.MinWithdrawal,
		ListHorizon:          time.Duration(c.ListHorizonDays) * 24 * time.Hour,
	}.Normalized()
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	NATS struct {
		URL           string        `mapstructure:"url"`
		Stream        string        `mapstructure:"stream"`
		Subject       string        `mapstructure:"subject"`       // Base subject for order messages (e.g. v1.orders)
		Consumer      string        `mapstructure:"consumer"`      // Durable consumer name
		MaxAgeDays    int           `mapstructure:"maxAgeDays"`    // Stream retention in days
		MaxDeliver    int           `mapstructure:"maxDeliver"`    // Max redelivery attempts before the broker gives up
		AckWait       time.Duration `mapstructure:"ackWait"`       // Ack wait timeout
		MaxAckPending int           `mapstructure:"maxAckPending"` // Max pending ACKs
		Workers       int           `mapstructure:"workers"`       // Number of concurrent processing workers
		NakBaseDelay  time.Duration `mapstructure:"nakBaseDelay"`  // Base delay for exponential backoff NAK
		NakMaxDelay   time.Duration `mapstructure:"nakMaxDelay"`   // Maximum delay for exponential backoff NAK
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Processing struct {
		ConsumerName string        `mapstructure:"consumerName"` // Logical consumer identity for idempotency records
		MaxAttempts  int           `mapstructure:"maxAttempts"`  // Attempts before a message is quarantined
		Timeout      time.Duration `mapstructure:"timeout"`      // Per-message business function timeout
	} `mapstructure:"processing"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	// NATS defaults
	v.SetDefault("nats.stream", "orders_stream")
	v.SetDefault("nats.subject", "v1.orders")
	v.SetDefault("nats.consumer", "order_consumer")
	v.SetDefault("nats.maxAgeDays", 7)
	v.SetDefault("nats.maxDeliver", 5)
	v.SetDefault("nats.ackWait", 30*time.Second)
	v.SetDefault("nats.maxAckPending", 1000)
	v.SetDefault("nats.workers", 8)
	v.SetDefault("nats.nakBaseDelay", 2*time.Second)
	v.SetDefault("nats.nakMaxDelay", 2*time.Minute)

	// Processing defaults
	v.SetDefault("processing.consumerName", "order-processor")
	v.SetDefault("processing.maxAttempts", 3)
	v.SetDefault("processing.timeout", 30*time.Second)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("/etc/order-idempotency-service")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if consumer := os.Getenv("CONSUMER_NAME"); consumer != "" {
		v.Set("processing.consumerName", consumer)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}

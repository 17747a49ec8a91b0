/**
 * @description
 * This package handles the configuration management for the settlement simulator. It
 * uses the Viper library to read configuration from environment variables and an
 * optional .env file, coercing out-of-range values back to safe defaults.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/engine"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds all the configuration variables for the simulator.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string  `mapstructure:"SERVER_PORT"`
	StorageBackend             string  `mapstructure:"STORAGE_BACKEND"`
	DatabaseURL                string  `mapstructure:"DATABASE_URL"`
	RedisURL                   string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	TransferRateLimitPerMinute int     `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL                string  `mapstructure:"RABBITMQ_URL"`
	EventsExchange             string  `mapstructure:"EVENTS_EXCHANGE"`
	PartnerStatusQueue         string  `mapstructure:"PARTNER_STATUS_QUEUE"`
	OpsJWTSecret               string  `mapstructure:"OPS_JWT_SECRET"`
	CORSAllowedOrigins         string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
	SeedFile                   string  `mapstructure:"SEED_FILE"`
	NIPBaseDelayMS             int     `mapstructure:"NIP_BASE_DELAY_MS"`
	NIPRetryAttempts           int     `mapstructure:"NIP_RETRY_ATTEMPTS"`
	NIPRetryDelayMS            int     `mapstructure:"NIP_RETRY_DELAY_MS"`
	NIPTickIntervalMS          int     `mapstructure:"NIP_TICK_INTERVAL_MS"`
	NIPFailureRate             float64 `mapstructure:"NIP_FAILURE_RATE"`
	ReverseOnFinalFailure      bool    `mapstructure:"REVERSE_ON_FINAL_FAILURE"`
	EventBufferSize            int     `mapstructure:"EVENT_BUFFER_SIZE"`
	HealthClassifierSchedule   string  `mapstructure:"HEALTH_CLASSIFIER_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORAGE_BACKEND", StorageMemory)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "wematrust:rate_limit")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("EVENTS_EXCHANGE", "wematrust.events")
	viper.SetDefault("PARTNER_STATUS_QUEUE", "wematrust.partner_status_updates")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("NIP_BASE_DELAY_MS", engine.DefaultBaseDelay.Milliseconds())
	viper.SetDefault("NIP_RETRY_ATTEMPTS", engine.DefaultRetryAttempts)
	viper.SetDefault("NIP_RETRY_DELAY_MS", engine.DefaultRetryDelay.Milliseconds())
	viper.SetDefault("NIP_TICK_INTERVAL_MS", engine.DefaultTickInterval.Milliseconds())
	viper.SetDefault("NIP_FAILURE_RATE", engine.DefaultFailureRate)
	viper.SetDefault("REVERSE_ON_FINAL_FAILURE", false)
	viper.SetDefault("EVENT_BUFFER_SIZE", 256)
	viper.SetDefault("HEALTH_CLASSIFIER_SCHEDULE", "@every 30s")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STORAGE_BACKEND")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("PARTNER_STATUS_QUEUE")
	_ = viper.BindEnv("OPS_JWT_SECRET")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("SEED_FILE")
	_ = viper.BindEnv("NIP_BASE_DELAY_MS")
	_ = viper.BindEnv("NIP_RETRY_ATTEMPTS")
	_ = viper.BindEnv("NIP_RETRY_DELAY_MS")
	_ = viper.BindEnv("NIP_TICK_INTERVAL_MS")
	_ = viper.BindEnv("NIP_FAILURE_RATE")
	_ = viper.BindEnv("REVERSE_ON_FINAL_FAILURE")
	_ = viper.BindEnv("EVENT_BUFFER_SIZE")
	_ = viper.BindEnv("HEALTH_CLASSIFIER_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.SeedFile = strings.TrimSpace(config.SeedFile)
	config.OpsJWTSecret = strings.TrimSpace(config.OpsJWTSecret)

	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "wematrust:rate_limit"
	}
	if strings.TrimSpace(config.EventsExchange) == "" {
		config.EventsExchange = "wematrust.events"
	}

	config.StorageBackend = strings.ToLower(strings.TrimSpace(config.StorageBackend))
	switch config.StorageBackend {
	case StorageMemory, StoragePostgres:
	default:
		log.Printf("level=warn component=config msg=\"unknown storage backend; using memory\" backend=%q", config.StorageBackend)
		config.StorageBackend = StorageMemory
	}
	if config.StorageBackend == StoragePostgres && config.DatabaseURL == "" {
		log.Printf("level=warn component=config msg=\"postgres storage selected without DATABASE_URL; using memory\"")
		config.StorageBackend = StorageMemory
	}

	if config.TransferRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative transfer rate limit; disabling\" limit=%d", config.TransferRateLimitPerMinute)
		config.TransferRateLimitPerMinute = 0
	}
	if config.NIPBaseDelayMS < 0 {
		log.Printf("level=warn component=config msg=\"negative NIP_BASE_DELAY_MS; using default\" value=%d", config.NIPBaseDelayMS)
		config.NIPBaseDelayMS = int(engine.DefaultBaseDelay.Milliseconds())
	}
	if config.NIPRetryAttempts < 0 {
		log.Printf("level=warn component=config msg=\"negative NIP_RETRY_ATTEMPTS; using default\" value=%d", config.NIPRetryAttempts)
		config.NIPRetryAttempts = engine.DefaultRetryAttempts
	}
	if config.NIPRetryDelayMS < 0 {
		log.Printf("level=warn component=config msg=\"negative NIP_RETRY_DELAY_MS; using default\" value=%d", config.NIPRetryDelayMS)
		config.NIPRetryDelayMS = int(engine.DefaultRetryDelay.Milliseconds())
	}
	if config.NIPTickIntervalMS <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive NIP_TICK_INTERVAL_MS; using default\" value=%d", config.NIPTickIntervalMS)
		config.NIPTickIntervalMS = int(engine.DefaultTickInterval.Milliseconds())
	}
	if config.NIPFailureRate < 0 || config.NIPFailureRate > 1 {
		log.Printf("level=warn component=config msg=\"NIP_FAILURE_RATE outside [0,1]; using default\" value=%f", config.NIPFailureRate)
		config.NIPFailureRate = engine.DefaultFailureRate
	}
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = 256
	}
	if strings.TrimSpace(config.HealthClassifierSchedule) == "" {
		config.HealthClassifierSchedule = "@every 30s"
	}

	return
}

// Simulation returns the settlement engine configuration.
func (c Config) Simulation() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.BaseDelay = time.Duration(c.NIPBaseDelayMS) * time.Millisecond
	cfg.RetryAttempts = c.NIPRetryAttempts
	cfg.RetryDelay = time.Duration(c.NIPRetryDelayMS) * time.Millisecond
	cfg.TickInterval = time.Duration(c.NIPTickIntervalMS) * time.Millisecond
	cfg.FailureRate = c.NIPFailureRate
	cfg.ReverseOnFinalFailure = c.ReverseOnFinalFailure
	return cfg
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

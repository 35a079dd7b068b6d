package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName          string `mapstructure:"app_name"`
	Env              string `mapstructure:"app_env"`
	LogLevel         string `mapstructure:"log_level"`
	HTTPAddr         string `mapstructure:"http_addr"`
	PublishersFile   string `mapstructure:"publishers_file"`
	PartitionWorkers int    `mapstructure:"partition_workers"`
	NotifyWorkers    int    `mapstructure:"notify_workers"`

	SourceType string `mapstructure:"source_type"`

	KafkaBrokersRaw    string   `mapstructure:"kafka_brokers"`
	KafkaBrokers       []string `mapstructure:"-"`
	KafkaTopic         string   `mapstructure:"kafka_topic"`
	KafkaGroupIDPrefix string   `mapstructure:"kafka_group_id_prefix"`
	KafkaUsername      string   `mapstructure:"kafka_username"`
	KafkaPassword      string   `mapstructure:"kafka_password"`
	KafkaTLS           bool     `mapstructure:"kafka_tls"`

	SQSQueueURL        string `mapstructure:"sqs_queue_url"`
	AWSRegion          string `mapstructure:"aws_region"`
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	SQSWaitSeconds     int32  `mapstructure:"sqs_wait_seconds"`
	SQSMaxMessages     int32  `mapstructure:"sqs_max_messages"`

	PubSubProjectID       string        `mapstructure:"pubsub_project_id"`
	PubSubSubscription    string        `mapstructure:"pubsub_subscription"`
	PubSubCredentialsFile string        `mapstructure:"pubsub_credentials_file"`
	PubSubEndpoint        string        `mapstructure:"pubsub_endpoint"`
	PubSubMaxExtensionSec int64         `mapstructure:"pubsub_max_extension_seconds"`
	PubSubMaxExtension    time.Duration `mapstructure:"-"`

	RedisURL       string        `mapstructure:"redis_url"`
	RedisStream    string        `mapstructure:"redis_stream"`
	RedisGroup     string        `mapstructure:"redis_group"`
	RedisConsumer  string        `mapstructure:"redis_consumer"`
	RedisBlockMs   int64         `mapstructure:"redis_block_ms"`
	RedisBlockTime time.Duration `mapstructure:"-"`

	StorageType     string `mapstructure:"storage_type"`
	BBoltPath       string `mapstructure:"bbolt_path"`
	SearchIndexPath string `mapstructure:"search_index_path"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	SearchLimit     int    `mapstructure:"search_limit"`

	LLMProvider string `mapstructure:"llm_provider"`
	LLMAPIKey   string `mapstructure:"llm_api_key"`
	LLMModel    string `mapstructure:"llm_model"`
	LLMBaseURL  string `mapstructure:"llm_base_url"`

	FetchTimeoutSeconds int64         `mapstructure:"fetch_timeout_seconds"`
	FetchTimeout        time.Duration `mapstructure:"-"`
	FetchUserAgent      string        `mapstructure:"fetch_user_agent"`
	FetchMaxBodyBytes   int           `mapstructure:"fetch_max_body_bytes"`

	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBaseDelayMs int64         `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs  int64         `mapstructure:"retry_max_delay_ms"`
	RetryBaseDelay   time.Duration `mapstructure:"-"`
	RetryMaxDelay    time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "samvad-news-ingestor")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":3000")
	v.SetDefault("publishers_file", "")
	v.SetDefault("partition_workers", 4)
	v.SetDefault("notify_workers", 4)

	v.SetDefault("source_type", "kafka")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "")
	v.SetDefault("kafka_group_id_prefix", "samvad-")
	v.SetDefault("kafka_username", "")
	v.SetDefault("kafka_password", "")
	v.SetDefault("kafka_tls", true)

	v.SetDefault("sqs_queue_url", "")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("sqs_wait_seconds", 20)
	v.SetDefault("sqs_max_messages", 10)

	v.SetDefault("pubsub_project_id", "")
	v.SetDefault("pubsub_subscription", "")
	v.SetDefault("pubsub_credentials_file", "")
	v.SetDefault("pubsub_endpoint", "")
	v.SetDefault("pubsub_max_extension_seconds", 600)

	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("redis_stream", "samvad:urls")
	v.SetDefault("redis_group", "samvad-ingestor")
	v.SetDefault("redis_consumer", "ingestor-1")
	v.SetDefault("redis_block_ms", 5000)

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/articles.db")
	v.SetDefault("search_index_path", "./data/articles.bleve")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("search_limit", 5)

	v.SetDefault("llm_provider", "googleai")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_model", "gemini-1.5-flash")
	v.SetDefault("llm_base_url", "")

	v.SetDefault("fetch_timeout_seconds", 15)
	v.SetDefault("fetch_user_agent", "Mozilla/5.0")
	v.SetDefault("fetch_max_body_bytes", 2<<20)

	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 1000)
	v.SetDefault("retry_max_delay_ms", 10000)
}

// normalize validates raw values and derives durations and lists.
func (c *Config) normalize() error {
	c.SourceType = strings.ToLower(strings.TrimSpace(c.SourceType))
	c.StorageType = strings.ToLower(strings.TrimSpace(c.StorageType))
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.KafkaBrokers = splitList(c.KafkaBrokersRaw)

	if c.PartitionWorkers <= 0 {
		return fmt.Errorf("invalid partition_workers (must be positive)")
	}
	if c.NotifyWorkers <= 0 {
		return fmt.Errorf("invalid notify_workers (must be positive)")
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("invalid search_limit (must be positive)")
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid fetch_timeout_seconds (must be positive seconds)")
	}
	if c.FetchMaxBodyBytes <= 0 {
		return fmt.Errorf("invalid fetch_max_body_bytes (must be positive)")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("invalid retry_attempts (must be positive)")
	}
	if c.RetryBaseDelayMs <= 0 || c.RetryMaxDelayMs <= 0 {
		return fmt.Errorf("invalid retry delays (must be positive milliseconds)")
	}
	if c.RetryMaxDelayMs < c.RetryBaseDelayMs {
		return fmt.Errorf("retry_max_delay_ms must not be lower than retry_base_delay_ms")
	}
	if c.RedisBlockMs <= 0 {
		return fmt.Errorf("invalid redis_block_ms (must be positive milliseconds)")
	}

	c.FetchTimeout = time.Duration(c.FetchTimeoutSeconds) * time.Second
	c.RetryBaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	c.RetryMaxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	c.RedisBlockTime = time.Duration(c.RedisBlockMs) * time.Millisecond
	c.PubSubMaxExtension = time.Duration(c.PubSubMaxExtensionSec) * time.Second

	switch c.SourceType {
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("kafka source requires kafka_brokers and kafka_topic")
		}
	case "sqs":
		if c.SQSQueueURL == "" {
			return fmt.Errorf("sqs source requires sqs_queue_url")
		}
	case "pubsub":
		if c.PubSubProjectID == "" || c.PubSubSubscription == "" {
			return fmt.Errorf("pubsub source requires pubsub_project_id and pubsub_subscription")
		}
	case "redis":
		if c.RedisURL == "" || c.RedisStream == "" {
			return fmt.Errorf("redis source requires redis_url and redis_stream")
		}
	default:
		return fmt.Errorf("unsupported source_type %q", c.SourceType)
	}

	if c.StorageType == "postgres" && strings.TrimSpace(c.PostgresDSN) == "" {
		return fmt.Errorf("postgres storage requires postgres_dsn")
	}
	if c.LLMProvider != "none" && c.LLMProvider != "openai" && strings.TrimSpace(c.LLMAPIKey) == "" {
		return fmt.Errorf("llm_provider %q requires llm_api_key", c.LLMProvider)
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Redacted returns a copy safe for logging.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.KafkaPassword = mask(c.KafkaPassword)
	c.AWSSecretAccessKey = mask(c.AWSSecretAccessKey)
	c.LLMAPIKey = mask(c.LLMAPIKey)
	c.PostgresDSN = mask(c.PostgresDSN)
	return c
}

package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	ServiceName  string   `env:"SERVICE_NAME"`
	HTTPPort     int      `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort  int      `env:"METRICS_PORT"`
	DatabaseURL  string   `env:"DATABASE_URL"`
	OTLPEndpoint string   `env:"OTLP_ENDPOINT"`
	Environment  string   `env:"ENVIRONMENT" envDefault:"development"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	// TraceSampleRatio applies to root spans; child spans follow their parent.
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO" envDefault:"1"`

	// KafkaTransport publishes accepted sms and whatsapp messages to their
	// dispatch topics.
	KafkaTransport bool   `env:"KAFKA_TRANSPORT" envDefault:"false"`
	RelayEnabled   bool   `env:"RELAY_ENABLED" envDefault:"false"`
	InboundTopic   string `env:"INBOUND_TOPIC" envDefault:"messages.inbound"`
	DLQTopic       string `env:"DLQ_TOPIC"`

	RetryLimit    int           `env:"RETRY_LIMIT" envDefault:"3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"30s"`
	FailureBuffer int           `env:"FAILURE_BUFFER" envDefault:"256"`

	S3         S3Config         `envPrefix:"S3_"`
	OpenSearch OpenSearchConfig `envPrefix:"OPENSEARCH_"`
	Email      EmailConfig      `envPrefix:"EMAIL_"`
}

type S3Config struct {
	Bucket         string `env:"BUCKET"`
	Region         string `env:"REGION" envDefault:"us-east-1"`
	Prefix         string `env:"PREFIX" envDefault:"payloads"`
	AccessKeyID    string `env:"ACCESS_KEY_ID"`
	SecretKey      string `env:"SECRET_KEY"`
	Endpoint       string `env:"ENDPOINT"`
	ForcePathStyle bool   `env:"FORCE_PATH_STYLE" envDefault:"false"`
}

type OpenSearchConfig struct {
	Addresses []string `env:"ADDRESSES" envSeparator:","`
	Username  string   `env:"USERNAME"`
	Password  string   `env:"PASSWORD"`
	Index     string   `env:"INDEX" envDefault:"message-payloads"`
}

type EmailConfig struct {
	From             string        `env:"FROM" envDefault:"no-reply@example.com"`
	BroadcastTo      string        `env:"BROADCAST_TO"`
	MaxElapsed       time.Duration `env:"MAX_ELAPSED" envDefault:"30s"`
	SESEndpoint      string        `env:"SES_ENDPOINT"`
	SESAPIKey        string        `env:"SES_API_KEY"`
	SendGridEndpoint string        `env:"SENDGRID_ENDPOINT"`
	SendGridAPIKey   string        `env:"SENDGRID_API_KEY"`
	PostmarkServer   string        `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccount  string        `env:"POSTMARK_ACCOUNT_TOKEN"`
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory when one exists.
func LoadConfig(service string) (*Config, error) {
	_ = godotenv.Load()
	return parseConfig(service, env.Options{})
}

func parseConfig(service string, opts env.Options) (*Config, error) {
	cfg := &Config{ServiceName: service}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = cfg.HTTPPort + 1000
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		return nil, fmt.Errorf("%w: TRACE_SAMPLE_RATIO must be within [0, 1]", ErrInvalidConfig)
	}
	if cfg.RetryLimit < 0 {
		return nil, fmt.Errorf("%w: RETRY_LIMIT must not be negative", ErrInvalidConfig)
	}
	if cfg.RetryInterval <= 0 {
		return nil, fmt.Errorf("%w: RETRY_INTERVAL must be positive", ErrInvalidConfig)
	}
	if cfg.RelayEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("%w: RELAY_ENABLED needs KAFKA_BROKERS", ErrInvalidConfig)
	}
	return cfg, nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/example/multichannel/internal/api"
	"github.com/example/multichannel/internal/common"
	"github.com/example/multichannel/internal/directory"
	"github.com/example/multichannel/internal/failure"
	"github.com/example/multichannel/internal/messaging"
	"github.com/example/multichannel/internal/payload"
	"github.com/example/multichannel/internal/relay"
	"github.com/example/multichannel/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("msgserver")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLogger(cfg.ServiceName)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort, logger)
	defer metricsSrv.Shutdown(context.Background())

	writers := newWriterCache(cfg.KafkaBrokers)
	defer writers.Close()

	sinks := []messaging.FailureSink{messaging.LogSink{Logger: logger}}
	if cfg.DLQTopic != "" {
		sinks = append(sinks, &failure.KafkaSink{Writer: writers.get(cfg.DLQTopic), Logger: logger})
	}
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres")
		}
		defer pool.Close()
		if err := failure.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate failure ledger")
		}
		pg, err := failure.NewPostgresSink(pool, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres failure sink")
		}
		sinks = append(sinks, pg)
	}
	failures := failure.NewAsync(cfg.FailureBuffer, logger, sinks...)
	defer func() {
		ctxClose, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelClose()
		if err := failures.Close(ctxClose); err != nil {
			logger.Error().Err(err).Msg("failure records not flushed")
		}
	}()

	users := directory.NewMemory(logger)

	opts := []messaging.RegistryOption{
		messaging.WithRetryLimit(cfg.RetryLimit),
		messaging.WithFailureSink(failures),
		messaging.WithRegistryLogger(logger),
	}
	if email := emailTransport(ctx, cfg, users, logger); email != nil {
		opts = append(opts, messaging.WithTransport(messaging.VariantEmail, email))
	}
	if cfg.KafkaTransport {
		for _, v := range []messaging.Variant{messaging.VariantSMS, messaging.VariantWhatsApp} {
			opts = append(opts, messaging.WithTransport(v, &transport.Kafka{
				Writer:  writers.get(transport.TopicForVariant(v)),
				Variant: v,
			}))
		}
	}
	registry := messaging.NewRegistry(opts...)

	router := messaging.NewRouter(
		messaging.WithLogger(logger),
		messaging.WithPayloadStore(payloadStore(ctx, cfg, logger)),
	)
	for _, v := range messaging.Variants {
		router.AddChannel(registry.Channel(v))
	}

	go registry.Redeliver(ctx, cfg.RetryInterval)

	if cfg.RelayEnabled {
		r := &relay.Relay{
			ReaderFactory: func() relay.Reader {
				return kafka.NewReader(kafka.ReaderConfig{
					Brokers: cfg.KafkaBrokers,
					GroupID: cfg.ServiceName,
					Topic:   cfg.InboundTopic,
				})
			},
			Router:   router,
			Channels: registry,
			Users:    users,
			Logger:   logger,
		}
		go func() {
			logger.Info().Str("topic", cfg.InboundTopic).Msg("relay started")
			if err := r.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("relay stopped")
				cancel()
			}
		}()
	}

	h := api.NewHandler(router, registry, users, logger)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("message server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	h.Wait()
}

// emailTransport builds the provider failover chain from whichever providers
// are configured. It returns nil when none are, leaving email in-process only.
func emailTransport(ctx context.Context, cfg *common.Config, users *directory.Memory, logger zerolog.Logger) messaging.Transport {
	var providers []transport.Provider
	if cfg.Email.SESEndpoint != "" {
		providers = append(providers, &transport.SESProvider{
			Endpoint: cfg.Email.SESEndpoint,
			APIKey:   cfg.Email.SESAPIKey,
			From:     cfg.Email.From,
		})
	}
	if cfg.Email.SendGridEndpoint != "" {
		providers = append(providers, &transport.SendGridProvider{
			Endpoint: cfg.Email.SendGridEndpoint,
			APIKey:   cfg.Email.SendGridAPIKey,
			From:     cfg.Email.From,
		})
	}
	pm, err := transport.NewPostmarkProvider(cfg.Email.PostmarkServer, cfg.Email.PostmarkAccount, cfg.Email.From)
	switch {
	case err == nil:
		providers = append(providers, pm)
	case !errors.Is(err, transport.ErrPostmarkNotConfigured):
		logger.Warn().Err(err).Msg("postmark provider disabled")
	}
	if len(providers) == 0 {
		return nil
	}
	logger.Info().Int("providers", len(providers)).Msg("email delivery enabled")
	return &transport.Failover{
		Variant:     messaging.VariantEmail,
		Providers:   providers,
		Resolve:     users.Address,
		BroadcastTo: cfg.Email.BroadcastTo,
		MaxElapsed:  cfg.Email.MaxElapsed,
		Logger:      logger,
	}
}

func payloadStore(ctx context.Context, cfg *common.Config, logger zerolog.Logger) messaging.PayloadStore {
	mux := &payload.Mux{}
	if cfg.S3.Bucket != "" {
		store, err := payload.NewS3Store(ctx, payload.S3Config{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Prefix:         cfg.S3.Prefix,
			AccessKeyID:    cfg.S3.AccessKeyID,
			SecretKey:      cfg.S3.SecretKey,
			Endpoint:       cfg.S3.Endpoint,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("s3 payload store")
		}
		mux.Object = store
	}
	if len(cfg.OpenSearch.Addresses) > 0 {
		store, err := payload.NewOpenSearchStore(payload.OpenSearchConfig{
			Addresses: cfg.OpenSearch.Addresses,
			Username:  cfg.OpenSearch.Username,
			Password:  cfg.OpenSearch.Password,
			Index:     cfg.OpenSearch.Index,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("opensearch payload store")
		}
		mux.Text = store
	}
	return mux
}

type writerCache struct {
	brokers []string
	writers map[string]*kafka.Writer
}

func newWriterCache(brokers []string) *writerCache {
	return &writerCache{brokers: brokers, writers: map[string]*kafka.Writer{}}
}

// get is only called during startup, before any goroutine shares the cache.
func (c *writerCache) get(topic string) *kafka.Writer {
	if w, ok := c.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(c.brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	c.writers[topic] = w
	return w
}

func (c *writerCache) Close() {
	for _, w := range c.writers {
		_ = w.Close()
	}
}

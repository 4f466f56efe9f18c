// Worker consumes inbound customer messages from Kafka and applies STOP/START style keywords
// to consent records. Set KAFKA_BROKERS, INBOUND_KAFKA_TOPIC and KAFKA_GROUP_ID; REDIS_ADDR
// enables de-duplication of redelivered provider messages.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/app"
	"github.com/itsfredrick/vayva-platform-sub007/internal/config"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/service"
	"github.com/itsfredrick/vayva-platform-sub007/internal/inbound"
	"github.com/itsfredrick/vayva-platform-sub007/internal/logging"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
	telemetryotel "github.com/itsfredrick/vayva-platform-sub007/internal/telemetry/otel"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("worker: KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := telemetryotel.SettingsFromConfig(cfg, "inbound-worker")
	settings.ServiceName += "-worker"
	providers, err := telemetryotel.NewProviders(ctx, settings, logger)
	if err != nil {
		logger.Fatal("otel", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	stores, err := app.OpenStores(cfg)
	if err != nil {
		logger.Fatal("storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer stores.Close()

	kafkaProducer, err := producer.NewKafkaProducer(brokers, cfg.ComplianceKafkaTopic)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	defer kafkaProducer.Close()
	emitter := telemetry.MultiEmitter{providers.ComplianceEmitter()}
	if kafkaProducer != nil {
		emitter = append(emitter, kafkaProducer)
	}
	publisher := telemetry.NewOrderedEmitter(emitter, logger, 0)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
		defer cancel()
		if err := publisher.Close(drainCtx); err != nil {
			logger.Warn("compliance events not drained", zap.Error(err))
		}
	}()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	consent := service.NewEngine(stores.Consent,
		service.WithPublisher(publisher),
		service.WithMetrics(metrics),
		service.WithLogger(logger))

	var dedupe inbound.Deduper
	if cfg.RedisAddr != "" {
		rdb, err := inbound.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		dedupe = inbound.NewRedisDeduper(rdb, cfg.DedupeTTL())
	} else {
		logger.Warn("worker: REDIS_ADDR not set; redelivered messages are applied again")
	}

	keywords := inbound.NewKeywordHandler(consent, dedupe, metrics, cfg.DefaultCountry, logger)
	consumer := inbound.NewConsumer(brokers, cfg.InboundKafkaTopic, cfg.KafkaGroupID, keywords, logger)
	defer consumer.Close()

	logger.Info("worker: consuming",
		zap.String("topic", cfg.InboundKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("storage", stores.Driver))
	if err := consumer.Run(ctx); err != nil {
		logger.Error("worker: stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker: stopped")
}

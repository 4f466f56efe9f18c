// server runs the consent HTTP API on HTTP_ADDR and the gRPC health service on GRPC_ADDR.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/app"
	"github.com/itsfredrick/vayva-platform-sub007/internal/audit"
	audithandler "github.com/itsfredrick/vayva-platform-sub007/internal/audit/handler"
	"github.com/itsfredrick/vayva-platform-sub007/internal/config"
	consenthandler "github.com/itsfredrick/vayva-platform-sub007/internal/consent/handler"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/service"
	"github.com/itsfredrick/vayva-platform-sub007/internal/enforcement"
	enforcementhandler "github.com/itsfredrick/vayva-platform-sub007/internal/enforcement/handler"
	healthhandler "github.com/itsfredrick/vayva-platform-sub007/internal/health/handler"
	"github.com/itsfredrick/vayva-platform-sub007/internal/inbound"
	inboundhandler "github.com/itsfredrick/vayva-platform-sub007/internal/inbound/handler"
	"github.com/itsfredrick/vayva-platform-sub007/internal/logging"
	policyengine "github.com/itsfredrick/vayva-platform-sub007/internal/policy/engine"
	policyhandler "github.com/itsfredrick/vayva-platform-sub007/internal/policy/handler"
	"github.com/itsfredrick/vayva-platform-sub007/internal/security"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
	telemetryotel "github.com/itsfredrick/vayva-platform-sub007/internal/telemetry/otel"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry/producer"
)

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.SettingsFromConfig(cfg, "api"), logger)
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

	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.ComplianceKafkaTopic)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	defer kafkaProducer.Close()
	emitter := telemetry.MultiEmitter{providers.ComplianceEmitter()}
	if kafkaProducer != nil {
		emitter = append(emitter, kafkaProducer)
		logger.Info("publishing compliance events", zap.String("topic", cfg.ComplianceKafkaTopic))
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
	evaluator := policyengine.NewOPAEvaluator(stores.Policies, logger)

	merchantTokens, err := loadMerchantTokens(cfg)
	if err != nil {
		logger.Fatal("merchant tokens", zap.Error(err))
	}
	prefTokens, err := security.NewPreferenceTokens(cfg.PreferenceTokenSecret, cfg.PreviousTokenSecrets()...)
	if err != nil {
		logger.Fatal("preference tokens", zap.Error(err))
	}

	var dedupe inbound.Deduper
	if cfg.RedisAddr != "" {
		rdb, err := inbound.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		dedupe = inbound.NewRedisDeduper(rdb, cfg.DedupeTTL())
	}
	keywords := inbound.NewKeywordHandler(consent, dedupe, metrics, cfg.DefaultCountry, logger)

	checker := healthhandler.NewChecker(stores.DB, evaluator)
	router := server.NewRouter(server.Deps{
		Tokens:      merchantTokens,
		Metrics:     metrics,
		Health:      checker,
		CORSOrigins: cfg.CORSOrigins(),
		Logger:      logger,
		Consent:     consenthandler.NewHandler(consent, cfg.DefaultCountry, logger),
		Preferences: consenthandler.NewPreferenceHandler(consent, prefTokens, metrics,
			cfg.PreferenceBaseURL, cfg.TokenTTL(), cfg.DefaultCountry, logger),
		Audit:     audithandler.NewHandler(audit.NewLog(stores.Audit), cfg.DefaultCountry, logger),
		Decisions: enforcementhandler.NewHandler(enforcement.NewEnforcer(consent, evaluator, metrics, logger), cfg.DefaultCountry, logger),
		Policies:  policyhandler.NewHandler(stores.Policies, evaluator, logger),
		Inbound:   inboundhandler.NewHandler(keywords, cfg.InboundWebhookSecret, logger),
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	grpcSrv := server.NewGRPCServer(healthhandler.NewServer(checker, logger))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", stores.Driver))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
}

// loadMerchantTokens builds the bearer token validator from JWT_PUBLIC_KEY. Tokens are minted
// by the platform auth service, so no private key is loaded.
func loadMerchantTokens(cfg *config.Config) (*security.MerchantTokens, error) {
	if cfg.JWTPublicKey == "" {
		return nil, errors.New("JWT_PUBLIC_KEY is required")
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewMerchantTokens(nil, pub, cfg.JWTIssuer, cfg.JWTAudience), nil
}

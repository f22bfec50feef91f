package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"wallet-ledger-go/internal/api"
	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/fees"
	"wallet-ledger-go/internal/formance"
	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/nowpayments"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Ledger    *api.LedgerService
	Events    *events.Dispatcher
	Mirror    *formance.Mirror
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the store, payment provider, event sinks and ledger service.
// Kafka and the Formance mirror are only attached when configured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	policy, err := fees.FromConfig(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid fee policy: %w", err)
	}

	dbService, err := database.NewService(ctx, cfg.Database, cfg.Policy.Currency)
	if err != nil {
		return nil, err
	}

	services := &Services{DbService: dbService}
	services.Registry = metrics.NewRegistry()
	services.Metrics = metrics.New(services.Registry)

	// Without an API key deposits are refused but notifications and withdrawals still work
	var provider api.PaymentProvider
	if cfg.NowPayments.APIKey != "" {
		client, err := nowpayments.NewClient(cfg.NowPayments)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to create payment provider: %w", err)
		}
		provider = client
	} else {
		zap.L().Warn("NOWPAYMENTS_API_KEY is not set; deposit creation is disabled")
	}
	if cfg.NowPayments.IPNSecret == "" {
		zap.L().Warn("NOWPAYMENTS_IPN_SECRET is not set; every notification will be rejected")
	}

	var sinks []events.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			services.Close()
			return nil, err
		}
		sinks = append(sinks, kafkaSink)
		zap.L().Info("Publishing ledger events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.Formance.StackURL != "" {
		mirror, err := formance.NewMirror(ctx, cfg.Formance)
		if err != nil {
			for _, sink := range sinks {
				_ = sink.Close()
			}
			services.Close()
			return nil, err
		}
		services.Mirror = mirror
		sinks = append(sinks, mirror)
	}

	services.Events = events.NewDispatcher(services.Metrics, sinks...)

	ledger, err := api.NewLedgerService(api.Options{
		Store:     dbService,
		Provider:  provider,
		Policy:    policy,
		Events:    services.Events,
		Metrics:   services.Metrics,
		IPNSecret: cfg.NowPayments.IPNSecret,
		Currency:  cfg.Policy.Currency,
	})
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Ledger = ledger

	return services, nil
}

// InitializeDatabaseOnly opens just the store, for read-only tools
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database, cfg.Policy.Currency)
}

func (cs *Services) Close() {
	if cs.Events != nil {
		cs.Events.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}

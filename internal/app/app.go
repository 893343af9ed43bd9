package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"swiftdrop/internal/config"
	"swiftdrop/internal/gateway"
	"swiftdrop/internal/gateway/paystack"
	"swiftdrop/internal/gateway/stripe"
	"swiftdrop/internal/notify"
	internalRedis "swiftdrop/internal/redis"
	"swiftdrop/internal/repository"
	"swiftdrop/internal/repository/memory"
	"swiftdrop/internal/repository/postgres"
	"swiftdrop/internal/service"
)

const shutdownTimeout = 5 * time.Second

// App holds the wired engine shared by the HTTP server and the operator CLI.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	NewRelic    *newrelic.Application
	DB          *sql.DB
	RedisClient *redis.Client

	Rides         *service.RideService
	Drivers       *service.DriverService
	Wallets       *service.WalletService
	Settlement    *service.SettlementService
	Notifications *service.NotificationService
	Gateway       gateway.Client

	publisher notify.Publisher
}

type stores struct {
	rides   repository.RideRepository
	drivers repository.DriverRepository
	wallets repository.WalletRepository
	tx      repository.Transactor
}

// New connects the configured backends and wires every service. Close must
// be called to release them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	// New Relic first so database and Redis clients can be instrumented.
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err := newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("new relic disabled", slog.Any("error", err))
		} else {
			a.NewRelic = nrApp
			logger.Info("new relic enabled", slog.String("app", cfg.NewRelic.AppName))
		}
	}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		cache internalRedis.RideCacheInterface
		locks internalRedis.LockStoreInterface
	)
	if cfg.Redis.Enabled {
		a.RedisClient, err = NewRedisClient(ctx, cfg.Redis, a.NewRelic)
		if err != nil {
			a.Close()
			return nil, err
		}
		cache = internalRedis.NewCacheStore(a.RedisClient, cfg.Redis.CacheTTL)
		locks = internalRedis.NewLockStore(a.RedisClient)
		logger.Info("connected to redis", slog.String("addr", cfg.Redis.Addr))
	}

	a.publisher, err = a.newPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = a.newGateway()

	fares := service.NewFareCalculator(cfg.Settlement.BaseFare, cfg.Settlement.PricePerKm)
	a.Notifications = service.NewNotificationService(a.publisher, logger)
	a.Wallets = service.NewWalletService(st.wallets, st.tx, service.WalletConfig{
		PlatformUserID:    cfg.Settlement.PlatformUserID,
		CommissionPercent: cfg.Settlement.CommissionPercent,
	}, logger)
	a.Rides = service.NewRideService(st.rides, st.drivers, st.tx, cache, a.Notifications, fares, logger)
	a.Drivers = service.NewDriverService(st.drivers, logger)
	a.Settlement = service.NewSettlementService(
		st.rides, st.tx, a.Wallets, a.Gateway, fares, a.Notifications, locks, cache,
		service.SettlementConfig{
			Currency:       cfg.Settlement.Currency,
			GatewayTimeout: cfg.Gateway.Timeout,
		},
		logger,
	)

	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	if a.Config.Storage.Backend == "memory" {
		a.Logger.Warn("using in-memory storage; data is lost on exit")
		m := memory.NewStore()
		return &stores{rides: m.Rides(), drivers: m.Drivers(), wallets: m.Wallets(), tx: m}, nil
	}

	db, err := NewDatabase(ctx, a.Config.Database, a.NewRelic)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.Logger.Info("connected to postgres", slog.String("host", a.Config.Database.Host))

	return &stores{
		rides:   postgres.NewRideRepository(db),
		drivers: postgres.NewDriverRepository(db),
		wallets: postgres.NewWalletRepository(db),
		tx:      postgres.NewTransactor(db),
	}, nil
}

func (a *App) newPublisher() (notify.Publisher, error) {
	cfg := a.Config.Notify
	switch cfg.Backend {
	case "redis":
		if a.RedisClient == nil {
			return nil, errors.New("redis notification queue requires redis")
		}
		return notify.NewRedisQueue(a.RedisClient, cfg.RedisQueue), nil
	case "kafka":
		return notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "amqp":
		p, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("connect notification broker: %w", err)
		}
		return p, nil
	default:
		return notify.NewLogPublisher(a.Logger), nil
	}
}

func (a *App) newGateway() gateway.Client {
	cfg := a.Config.Gateway
	if cfg.Provider == "stripe" {
		return stripe.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeSuccessURL, cfg.StripeCancelURL)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if a.NewRelic != nil {
		httpClient.Transport = newrelic.NewRoundTripper(http.DefaultTransport)
	}
	return paystack.New(cfg.PaystackSecretKey, cfg.Timeout,
		paystack.WithBaseURL(cfg.PaystackBaseURL),
		paystack.WithCallbackURL(cfg.PaystackCallbackURL),
		paystack.WithHTTPClient(httpClient),
	)
}

// Close waits for in-flight notifications and releases every backend.
func (a *App) Close() {
	a.Notifications.Wait()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("close notification publisher", slog.Any("error", err))
		}
	}
	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.NewRelic != nil {
		a.NewRelic.Shutdown(shutdownTimeout)
	}
}

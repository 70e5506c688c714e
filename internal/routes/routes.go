package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sofico/sofico_wallet/internal/config"
	"github.com/sofico/sofico_wallet/internal/funding"
	"github.com/sofico/sofico_wallet/internal/gateway"
	"github.com/sofico/sofico_wallet/internal/ledger"
	"github.com/sofico/sofico_wallet/internal/middleware"
	"github.com/sofico/sofico_wallet/internal/notification"
	"github.com/sofico/sofico_wallet/internal/payments"
	"github.com/sofico/sofico_wallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache and Events are
// optional in development.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Events  notification.MessageWriter
	Gateway gateway.Gateway
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	svc, err := funding.NewService(newStore(d), newGateway(d), newNotifier(d), d.Logger, funding.Options{
		Currency:                d.Cfg.Currency,
		SettleMaxAttempts:       d.Cfg.SettleMaxAttempts,
		SettleBaseBackoff:       d.Cfg.SettleBaseBackoff,
		RequireKYCForWithdrawal: d.Cfg.RequireKYCForWithdrawal,
	})
	if err != nil {
		return err
	}

	var idempotent fiber.Handler = func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.JWTAuth([]byte(d.Cfg.JWTSecret)))
	RegisterWalletRoutes(protected, wallet.NewHandler(svc))
	RegisterFundingRoutes(protected, funding.NewHandler(svc), idempotent)
	RegisterPaymentRoutes(protected, payments.NewHandler(svc), idempotent,
		middleware.RateLimit(d.Cache, "payment_callback", d.Cfg.CallbackRateLimit))

	return nil
}

func newStore(d Deps) ledger.Store {
	if d.DB != nil {
		return ledger.NewPostgresStore(d.DB)
	}
	d.Logger.Warn("DATABASE_URL not set, using in-memory ledger")
	return ledger.NewInMemory()
}

func newGateway(d Deps) gateway.Gateway {
	if d.Gateway != nil {
		return d.Gateway
	}
	if d.Cfg.Gateway.Simulated() {
		d.Logger.Warn("GATEWAY_KEY_ID not set, using simulated payment gateway")
		return gateway.NewStaticGateway("", d.Cfg.Gateway.KeySecret)
	}
	return gateway.NewRazorpayGateway(gateway.Config{
		BaseURL:   d.Cfg.Gateway.BaseURL,
		KeyID:     d.Cfg.Gateway.KeyID,
		KeySecret: d.Cfg.Gateway.KeySecret,
		Timeout:   d.Cfg.Gateway.Timeout,
		RPS:       d.Cfg.Gateway.RPS,
	}, nil, d.Logger)
}

func newNotifier(d Deps) notification.Notifier {
	fanout := notification.Fanout{notification.NewLoggerNotifier(d.Logger)}
	if d.Cache != nil {
		fanout = append(fanout, notification.NewRedisNotifier(d.Cache, d.Cfg.EventsChannel))
	}
	if d.Events != nil {
		fanout = append(fanout, notification.NewKafkaNotifier(d.Events))
	}
	return fanout
}

package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/funding"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/issuers"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/node"
	"github.com/congo-pay/custody/internal/payments"
	"github.com/congo-pay/custody/internal/wallet"
)

// flowRequestsPerMinute bounds flow-starting requests per party and client.
const flowRequestsPerMinute = 60

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Node   *node.Node
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Node == nil {
		return fmt.Errorf("node is required")
	}
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	dir := d.Node.Directory
	walletHandler := wallet.NewHandler(wallet.NewService(partyLookup[wallet.Flows](dir)))
	paymentHandler := payments.NewHandler(payments.NewService(partyLookup[payments.Flows](dir)))
	fundingHandler := funding.NewHandler(funding.NewService(partyLookup[funding.Flows](dir)))
	issuerHandler := issuers.NewHandler(issuers.NewService(partyLookup[issuers.Flows](dir)))
	flowHandler := flow.NewHandler(dir)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"request_id": reqID,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterIdentityRoutes(api, identity.NewHandler(d.Node.Registry))

	// Party-scoped routes act on behalf of a party hosted by this node.
	party := api.Group("/parties/:party",
		middleware.FlowRateLimit(d.Cache, flowRequestsPerMinute),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)
	RegisterWalletRoutes(party, walletHandler)
	RegisterFundingRoutes(party, fundingHandler)
	RegisterPaymentRoutes(party, paymentHandler)
	RegisterIssuerRoutes(party, issuerHandler)
	RegisterFlowRoutes(party, flowHandler)

	return nil
}

// partyLookup narrows the hosted flow services to the interface a handler needs.
func partyLookup[T any](dir flow.Directory) func(string) (T, error) {
	return func(party string) (T, error) {
		var zero T
		svc, err := dir.Lookup(party)
		if err != nil {
			return zero, err
		}
		flows, ok := any(svc).(T)
		if !ok {
			return zero, fmt.Errorf("party %s: flow service does not provide %T", party, zero)
		}
		return flows, nil
	}
}

package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/taskfoxapp/taskfox/app/controllers"
	apiv1 "github.com/taskfoxapp/taskfox/internal/api/v1"
	"github.com/taskfoxapp/taskfox/internal/pkg/cache"
	"github.com/taskfoxapp/taskfox/internal/pkg/env"
	"github.com/taskfoxapp/taskfox/internal/pkg/middleware"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

type ApiRouter struct {
	deps *Dependencies
}

func NewApiRouter(deps *Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	billingCtrl := controllers.NewBillingController(h.deps.Billing, env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))

	// The webhook ingress sits outside the rate limiter; Stripe controls the
	// delivery pace and a limited delivery would be retried as a failure.
	app.Post("/webhooks/stripe", billingCtrl.HandleStripeWebhook)

	api := app.Group("/api", newRateLimiter())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(h.deps.Billing, h.deps.Repos.Todo, h.deps.Repos.User, h.deps.Queue)

	v1.Get("/ping", apiServer.GetPing)

	authed := v1.Group("", middleware.RequireAPISessionAuth)
	authed.Get("/me/subscription", apiServer.GetSubscription)
	authed.Get("/me/invoices", apiServer.GetInvoices)
	authed.Get("/me/usage", apiServer.GetUsage)
	authed.Post("/me/export", apiServer.RequestExport)
	authed.Get("/plans", apiServer.GetPlans)

	authed.Get("/todos", apiServer.ListTodos)
	authed.Post("/todos", apiServer.CreateTodo)
	authed.Put("/todos/:id", func(c *fiber.Ctx) error {
		return apiServer.UpdateTodo(c, parseID(c))
	})
	authed.Delete("/todos/:id", func(c *fiber.Ctx) error {
		return apiServer.DeleteTodo(c, parseID(c))
	})
}

// newRateLimiter builds a sliding-window limiter backed by Redis, keyed by
// user id for authenticated requests and by IP otherwise.
func newRateLimiter() fiber.Handler {
	cacheOpts := cache.GetClient().Options()
	host, port := "127.0.0.1", 6379
	if h, p, err := net.SplitHostPort(cacheOpts.Addr); err == nil {
		host = h
		if parsed, e := strconv.Atoi(p); e == nil {
			port = parsed
		}
	}

	max := 120
	if v, err := strconv.Atoi(env.GetEnv("API_RATE_LIMIT", "")); err == nil && v > 0 {
		max = v
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		Storage: redisstorage.New(redisstorage.Config{
			Host:     host,
			Port:     port,
			Username: cacheOpts.Username,
			Password: cacheOpts.Password,
			Database: 3,
			Reset:    false,
		}),
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID := usercontext.GetUserID(c); userID != 0 {
				return "user:" + strconv.FormatUint(uint64(userID), 10)
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests, slow down",
			})
		},
	})
}

func parseID(c *fiber.Ctx) uint {
	v, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

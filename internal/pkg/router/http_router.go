package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/taskfoxapp/taskfox/app/controllers"
	"github.com/taskfoxapp/taskfox/internal/pkg/env"
	"github.com/taskfoxapp/taskfox/internal/pkg/middleware"
	"github.com/taskfoxapp/taskfox/internal/pkg/oauth"
	"github.com/taskfoxapp/taskfox/internal/pkg/session"
)

type HttpRouter struct {
	deps *Dependencies
}

func NewHttpRouter(deps *Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerOAuthRoutes(app)
	h.registerCSRFProtectedRoutes(app)
}

// registerOAuthRoutes installs the goth begin/callback endpoints. They stay
// outside the CSRF group since the provider posts back cross-site.
func (h HttpRouter) registerOAuthRoutes(app *fiber.App) {
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)
}

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			// Stripe signs its deliveries, the signature check replaces CSRF there.
			return strings.HasPrefix(c.Path(), "/api/") || strings.HasPrefix(c.Path(), "/webhooks/")
		},
	}

	mainCtrl := controllers.NewMainController(h.deps.Repos.User, h.deps.Billing, h.deps.Queue)
	todoCtrl := controllers.NewTodoController(h.deps.Repos.Todo, h.deps.Billing)
	billingCtrl := controllers.NewBillingController(h.deps.Billing, env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))

	group := app.Group("", cors.New(), csrf.New(csrfConf))

	// Public pages
	group.Get("/", mainCtrl.HandleHome)
	group.Get("/pricing", mainCtrl.HandlePricing)
	group.Get("/login", controllers.HandleAuthLogin)
	group.Post("/login", controllers.HandleAuthLogin)
	group.Get("/register", controllers.HandleAuthRegister)
	group.Post("/register", controllers.HandleAuthRegister)
	group.Get("/activate/:token", controllers.HandleAuthActivate)
	group.Get("/logout", controllers.HandleAuthLogout)

	// Dashboard
	group.Get("/dashboard", middleware.RequireAuth, mainCtrl.HandleDashboard)
	group.Post("/dashboard/export", middleware.RequireAuth, mainCtrl.HandleExportRequest)

	// Todos
	group.Get("/todos", middleware.RequireAuth, todoCtrl.HandleList)
	group.Post("/todos", middleware.RequireAuth, todoCtrl.HandleCreate)
	group.Post("/todos/:id/toggle", middleware.RequireAuth, todoCtrl.HandleToggle)
	group.Post("/todos/:id/update", middleware.RequireAuth, todoCtrl.HandleUpdate)
	group.Post("/todos/:id/delete", middleware.RequireAuth, todoCtrl.HandleDelete)

	// Billing
	group.Get("/dashboard/billing", middleware.RequireAuth, billingCtrl.HandleBillingPage)
	group.Post("/dashboard/billing/checkout", middleware.RequireAuth, billingCtrl.HandleCheckout)
	group.Post("/dashboard/billing/portal", middleware.RequireAuth, billingCtrl.HandlePortal)
	group.Post("/dashboard/billing/cancel", middleware.RequireAuth, billingCtrl.HandleCancel)
	group.Post("/dashboard/billing/reactivate", middleware.RequireAuth, billingCtrl.HandleReactivate)
}

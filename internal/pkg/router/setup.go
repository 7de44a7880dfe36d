package router

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/taskfoxapp/taskfox/app/repository"
	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
	"github.com/taskfoxapp/taskfox/internal/pkg/database"
	"github.com/taskfoxapp/taskfox/internal/pkg/env"
	"github.com/taskfoxapp/taskfox/internal/pkg/jobqueue"
	"github.com/taskfoxapp/taskfox/internal/pkg/notify"
)

// Router installs a route group on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	deps := buildDependencies()

	// Install HttpRouter first to initialize session store, oauth providers,
	// and the global UserContext middleware. Then register API routes which
	// depend on that middleware.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

// Dependencies bundles the shared services both route groups need.
type Dependencies struct {
	Repos   *repository.Repositories
	Billing *billing.Service
	Queue   *jobqueue.Queue
}

func buildDependencies() *Dependencies {
	db := database.GetDB()
	repository.InitializeFactory(db)

	queue := jobqueue.GetManager().GetQueue()

	provider, err := billing.NewStripeClientFromEnv()
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			log.Warn("[Router] STRIPE_SECRET_KEY not set, billing operations are disabled")
		} else {
			log.Errorf("[Router] stripe client init failed: %v", err)
		}
		provider = nil
	}

	appURL := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000"), "/")
	svc := billing.NewService(
		billing.NewRepository(db),
		providerOrNil(provider),
		notify.NewEmailNotifier(queue),
		appURL,
	)

	return &Dependencies{
		Repos:   repository.GetGlobalRepositories(),
		Billing: svc,
		Queue:   queue,
	}
}

// providerOrNil avoids storing a typed nil inside the interface value.
func providerOrNil(c *billing.StripeClient) billing.ProviderClient {
	if c == nil {
		return nil
	}
	return c
}

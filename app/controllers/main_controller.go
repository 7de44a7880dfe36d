package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/taskfoxapp/taskfox/app/repository"
	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
	"github.com/taskfoxapp/taskfox/internal/pkg/entitlements"
	"github.com/taskfoxapp/taskfox/internal/pkg/jobqueue"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

// MainController serves the public pages and the dashboard overview.
type MainController struct {
	users   repository.UserRepository
	billing *billing.Service
	queue   *jobqueue.Queue
}

// NewMainController wires the main controller.
func NewMainController(users repository.UserRepository, billingSvc *billing.Service, queue *jobqueue.Queue) *MainController {
	return &MainController{users: users, billing: billingSvc, queue: queue}
}

// HandleHome renders the landing page.
func (mc *MainController) HandleHome(c *fiber.Ctx) error {
	return c.Render("home", viewData(c, fiber.Map{
		"Title": "Taskfox",
	}))
}

// HandlePricing renders the public pricing page from the plan catalog.
func (mc *MainController) HandlePricing(c *fiber.Ctx) error {
	plans, err := mc.billing.GetPlans()
	if err != nil {
		log.Errorf("[Main] failed to load plan catalog: %v", err)
		plans = nil
	}
	return c.Render("pricing", viewData(c, fiber.Map{
		"Title": "Pricing",
		"Plans": plans,
	}))
}

// HandleDashboard renders the dashboard overview with usage numbers.
func (mc *MainController) HandleDashboard(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	usage, err := mc.billing.GetUsage(userID)
	if err != nil {
		return flashError(c, "Could not load your usage", "/")
	}
	sub, err := mc.billing.GetSubscription(userID)
	if err != nil {
		return flashError(c, "Could not load your subscription", "/")
	}

	return c.Render("dashboard", viewData(c, fiber.Map{
		"Title":        "Dashboard",
		"Usage":        usage,
		"Subscription": sub,
		"TodoLimit":    entitlements.FreeTodoLimit,
	}))
}

// HandleExportRequest queues an account data export, a Pro feature.
func (mc *MainController) HandleExportRequest(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	ok, err := mc.billing.HasFeature(userID, entitlements.FeatureExportData)
	if err != nil {
		return flashError(c, "Could not verify your plan", "/dashboard")
	}
	if !ok {
		return flashError(c, "Data export is a Pro feature", "/dashboard/billing")
	}

	user, err := mc.users.GetByID(userID)
	if err != nil {
		return flashError(c, "Could not load your account", "/dashboard")
	}

	payload := jobqueue.DataExportJobPayload{UserID: user.ID, Email: user.Email}
	if _, err := mc.queue.EnqueueJob(jobqueue.JobTypeDataExport, payload.ToMap()); err != nil {
		log.Errorf("[Main] failed to enqueue data export for user %d: %v", userID, err)
		return flashError(c, "Could not start the export, please try again", "/dashboard")
	}

	return flashSuccess(c, "Export started. You will receive a download link by email.", "/dashboard")
}

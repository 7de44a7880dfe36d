package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/app/repository"
	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
	"github.com/taskfoxapp/taskfox/internal/pkg/entitlements"
	"github.com/taskfoxapp/taskfox/internal/pkg/jobqueue"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

// APIServer serves the JSON API v1. Dependencies are injected by the router.
type APIServer struct {
	billing *billing.Service
	todos   repository.TodoRepository
	users   repository.UserRepository
	queue   *jobqueue.Queue
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billingSvc *billing.Service, todos repository.TodoRepository, users repository.UserRepository, queue *jobqueue.Queue) *APIServer {
	return &APIServer{billing: billingSvc, todos: todos, users: users, queue: queue}
}

// Pong is the ping response payload
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetSubscription returns the caller's subscription mirror, null when the
// user never subscribed.
func (s *APIServer) GetSubscription(c *fiber.Ctx) error {
	sub, err := s.billing.GetSubscription(usercontext.GetUserID(c))
	if err != nil {
		return serverError(c, "failed to load subscription")
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// GetPlans returns the active plan catalog.
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	plans, err := s.billing.GetPlans()
	if err != nil {
		return serverError(c, "failed to load plans")
	}

	out := make([]fiber.Map, 0, len(plans))
	for i := range plans {
		p := &plans[i]
		out = append(out, fiber.Map{
			"stripe_price_id": p.StripePriceID,
			"name":            p.Name,
			"description":     p.Description,
			"price":           p.Price,
			"interval":        p.Interval,
			"features":        p.Features(),
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

// GetInvoices returns the caller's invoice history.
func (s *APIServer) GetInvoices(c *fiber.Ctx) error {
	invoices, err := s.billing.GetInvoices(usercontext.GetUserID(c))
	if err != nil {
		return serverError(c, "failed to load invoices")
	}
	return c.JSON(fiber.Map{"invoices": invoices})
}

// GetUsage returns quota consumption plus the caller's current limits.
func (s *APIServer) GetUsage(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	usage, err := s.billing.GetUsage(userID)
	if err != nil {
		return serverError(c, "failed to load usage")
	}
	unlimited, err := s.billing.HasFeature(userID, entitlements.FeatureUnlimitedTodos)
	if err != nil {
		return serverError(c, "failed to resolve entitlements")
	}

	resp := fiber.Map{
		"todos":     usage.Todos,
		"unlimited": unlimited,
	}
	if !unlimited {
		resp["limit"] = entitlements.FreeTodoLimit
	}
	return c.JSON(resp)
}

// RequestExport queues an account data export, a Pro feature. The export is
// processed in the background; the download link arrives by email.
func (s *APIServer) RequestExport(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	ok, err := s.billing.HasFeature(userID, entitlements.FeatureExportData)
	if err != nil {
		return serverError(c, "failed to resolve entitlements")
	}
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "feature_required",
			"message": "data export requires the pro plan",
		})
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return serverError(c, "failed to load account")
	}

	payload := jobqueue.DataExportJobPayload{UserID: user.ID, Email: user.Email}
	if _, err := s.queue.EnqueueJob(jobqueue.JobTypeDataExport, payload.ToMap()); err != nil {
		return serverError(c, "failed to queue export")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "queued",
		"message": "you will receive a download link by email",
	})
}

// ListTodos returns the caller's todos.
func (s *APIServer) ListTodos(c *fiber.Ctx) error {
	todos, err := s.todos.GetByUserID(usercontext.GetUserID(c))
	if err != nil {
		return serverError(c, "failed to load todos")
	}
	return c.JSON(fiber.Map{"todos": todos})
}

type todoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Done        *bool  `json:"done"`
}

// CreateTodo adds a todo, enforcing the free-tier quota.
func (s *APIServer) CreateTodo(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var req todoRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ok, err := s.billing.CanCreateTodo(userID)
	if err != nil {
		return serverError(c, "failed to resolve entitlements")
	}
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "quota_exceeded",
			"message": "free plan todo limit reached",
			"limit":   entitlements.FreeTodoLimit,
		})
	}

	maxPos, err := s.todos.MaxPositionByUserID(userID)
	if err != nil {
		return serverError(c, "failed to create todo")
	}

	todo := &models.Todo{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Position:    maxPos + 1,
	}
	if err := todo.Validate(); err != nil {
		return badRequest(c, "title is required (max 200 characters)")
	}
	if err := s.todos.Create(todo); err != nil {
		return serverError(c, "failed to create todo")
	}
	return c.Status(fiber.StatusCreated).JSON(todo)
}

// UpdateTodo edits a todo owned by the caller.
func (s *APIServer) UpdateTodo(c *fiber.Ctx, id uint) error {
	todo, ok := s.ownedTodo(c, id)
	if !ok {
		return notFound(c)
	}

	var req todoRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Title != "" {
		todo.Title = req.Title
	}
	if req.Description != "" {
		todo.Description = req.Description
	}
	if req.Done != nil {
		todo.Done = *req.Done
	}
	if err := todo.Validate(); err != nil {
		return badRequest(c, "title is required (max 200 characters)")
	}
	if err := s.todos.Update(todo); err != nil {
		return serverError(c, "failed to update todo")
	}
	return c.JSON(todo)
}

// DeleteTodo removes a todo owned by the caller.
func (s *APIServer) DeleteTodo(c *fiber.Ctx, id uint) error {
	todo, ok := s.ownedTodo(c, id)
	if !ok {
		return notFound(c)
	}
	if err := s.todos.Delete(todo.ID); err != nil {
		return serverError(c, "failed to delete todo")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ownedTodo loads the addressed todo and enforces ownership. Missing rows and
// foreign rows are indistinguishable to the caller.
func (s *APIServer) ownedTodo(c *fiber.Ctx, id uint) (*models.Todo, bool) {
	todo, err := s.todos.GetByID(id)
	if err != nil || todo.UserID != usercontext.GetUserID(c) {
		return nil, false
	}
	return todo, true
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":   "not_found",
		"message": "todo not found",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": message,
	})
}

func serverError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_error",
		"message": message,
	})
}

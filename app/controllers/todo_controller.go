package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/app/repository"
	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
	"github.com/taskfoxapp/taskfox/internal/pkg/entitlements"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

// TodoController serves the dashboard todo pages. The billing service is
// injected for quota checks.
type TodoController struct {
	todos   repository.TodoRepository
	billing *billing.Service
}

// NewTodoController wires the todo controller.
func NewTodoController(todos repository.TodoRepository, billingSvc *billing.Service) *TodoController {
	return &TodoController{todos: todos, billing: billingSvc}
}

// HandleList renders the todo dashboard.
func (tc *TodoController) HandleList(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	todos, err := tc.todos.GetByUserID(userID)
	if err != nil {
		return flashError(c, "Could not load your todos", "/dashboard")
	}

	count := int64(len(todos))
	canCreate, err := tc.billing.CanCreateTodo(userID)
	if err != nil {
		canCreate = count < entitlements.FreeTodoLimit
	}

	return c.Render("todos/index", viewData(c, fiber.Map{
		"Title":     "My Todos",
		"Todos":     todos,
		"Count":     count,
		"Limit":     entitlements.FreeTodoLimit,
		"CanCreate": canCreate,
	}))
}

// HandleCreate adds a todo, enforcing the free-tier quota.
func (tc *TodoController) HandleCreate(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	ok, err := tc.billing.CanCreateTodo(userID)
	if err != nil {
		return flashError(c, "Could not verify your plan limits", "/todos")
	}
	if !ok {
		return flashError(c,
			fmt.Sprintf("Free plan is limited to %d todos. Upgrade to Pro for unlimited todos.", entitlements.FreeTodoLimit),
			"/dashboard/billing")
	}

	maxPos, err := tc.todos.MaxPositionByUserID(userID)
	if err != nil {
		return flashError(c, "Could not create the todo", "/todos")
	}

	todo := &models.Todo{
		UserID:      userID,
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Position:    maxPos + 1,
	}
	if err := todo.Validate(); err != nil {
		return flashError(c, "Please provide a title (max 200 characters)", "/todos")
	}
	if err := tc.todos.Create(todo); err != nil {
		return flashError(c, "Could not create the todo", "/todos")
	}

	return flashSuccess(c, "Todo created", "/todos")
}

// HandleToggle flips the done flag.
func (tc *TodoController) HandleToggle(c *fiber.Ctx) error {
	todo, err := tc.ownedTodo(c)
	if err != nil {
		return flashError(c, "Todo not found", "/todos")
	}

	todo.Done = !todo.Done
	if err := tc.todos.Update(todo); err != nil {
		return flashError(c, "Could not update the todo", "/todos")
	}
	return c.Redirect("/todos", fiber.StatusSeeOther)
}

// HandleUpdate edits title and description.
func (tc *TodoController) HandleUpdate(c *fiber.Ctx) error {
	todo, err := tc.ownedTodo(c)
	if err != nil {
		return flashError(c, "Todo not found", "/todos")
	}

	todo.Title = c.FormValue("title", todo.Title)
	todo.Description = c.FormValue("description", todo.Description)
	if err := todo.Validate(); err != nil {
		return flashError(c, "Please provide a title (max 200 characters)", "/todos")
	}
	if err := tc.todos.Update(todo); err != nil {
		return flashError(c, "Could not update the todo", "/todos")
	}
	return flashSuccess(c, "Todo updated", "/todos")
}

// HandleDelete removes a todo.
func (tc *TodoController) HandleDelete(c *fiber.Ctx) error {
	todo, err := tc.ownedTodo(c)
	if err != nil {
		return flashError(c, "Todo not found", "/todos")
	}

	if err := tc.todos.Delete(todo.ID); err != nil {
		return flashError(c, "Could not delete the todo", "/todos")
	}
	return flashSuccess(c, "Todo deleted", "/todos")
}

// ownedTodo loads the addressed todo and enforces ownership.
func (tc *TodoController) ownedTodo(c *fiber.Ctx) (*models.Todo, error) {
	id := paramUint(c, "id")
	if id == 0 {
		return nil, fiber.ErrBadRequest
	}
	todo, err := tc.todos.GetByID(id)
	if err != nil {
		return nil, err
	}
	if todo.UserID != usercontext.GetUserID(c) {
		return nil, fiber.ErrForbidden
	}
	return todo, nil
}

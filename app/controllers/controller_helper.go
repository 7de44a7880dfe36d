package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/internal/pkg/session"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

// Session keys written on login and read by the user context middleware.
const (
	AUTH_KEY string = "authenticated"
)

// viewData builds the base template data every page render needs.
func viewData(c *fiber.Ctx, data fiber.Map) fiber.Map {
	userCtx := usercontext.GetUserContext(c)
	out := fiber.Map{
		"IsLoggedIn": userCtx.IsLoggedIn,
		"IsAdmin":    userCtx.IsAdmin,
		"Username":   userCtx.Username,
		"Plan":       userCtx.Plan,
		"Flash":      flash.Get(c),
	}
	if token, ok := c.Locals("csrf").(string); ok {
		out["CSRFToken"] = token
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

// refreshPlanCache rewrites the session plan cache and the current request's
// user context from the subscription mirror. The middleware caches the plan
// per session, so a fresh purchase has to overwrite it explicitly.
func refreshPlanCache(c *fiber.Ctx, sub *models.Subscription) {
	plan := "free"
	if sub != nil && sub.IsActive() {
		plan = "pro"
	}
	_ = session.SetSessionValue(c, "user_plan", plan)

	userCtx := usercontext.GetUserContext(c)
	userCtx.Plan = plan
	c.Locals(usercontext.KeyUserContext, userCtx)
}

// paramUint parses a numeric path parameter, 0 means invalid.
func paramUint(c *fiber.Ctx, name string) uint {
	v, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

// flashError redirects with an error toast.
func flashError(c *fiber.Ctx, message, target string) error {
	return flash.WithError(c, fiber.Map{
		"type":    "error",
		"message": message,
	}).Redirect(target)
}

// flashSuccess redirects with a success toast.
func flashSuccess(c *fiber.Ctx, message, target string) error {
	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": message,
	}).Redirect(target)
}

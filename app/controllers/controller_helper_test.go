package controllers

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

// planAfterRefresh runs refreshPlanCache inside a request whose session cached
// plan is "free" and reports the plan the templates would see afterwards.
func planAfterRefresh(t *testing.T, sub *models.Subscription) string {
	t.Helper()

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
			UserID:     1,
			IsLoggedIn: true,
			Plan:       "free",
		})
		return c.Next()
	})
	app.Get("/billing", func(c *fiber.Ctx) error {
		refreshPlanCache(c, sub)
		return c.SendString(usercontext.GetUserContext(c).Plan)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/billing", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRefreshPlanCache_ActiveSubscriptionUpgradesPlan(t *testing.T) {
	sub := &models.Subscription{
		UserID:               1,
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
	}
	assert.Equal(t, "pro", planAfterRefresh(t, sub))
}

func TestRefreshPlanCache_NoSubscriptionStaysFree(t *testing.T) {
	assert.Equal(t, "free", planAfterRefresh(t, nil))
}

func TestRefreshPlanCache_PastDueSubscriptionStaysFree(t *testing.T) {
	sub := &models.Subscription{
		UserID:               1,
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusPastDue,
	}
	assert.Equal(t, "free", planAfterRefresh(t, sub))
}

package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/app/repository"
	"github.com/taskfoxapp/taskfox/internal/pkg/env"
	"github.com/taskfoxapp/taskfox/internal/pkg/jobqueue"
	"github.com/taskfoxapp/taskfox/internal/pkg/session"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
	"github.com/taskfoxapp/taskfox/internal/pkg/utils"
)

func HandleAuthLogin(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		userRepo := repository.GetGlobalRepositories().User

		// notice: in production you should not inform the user
		// with detailed messages about login failures
		user, err := userRepo.GetByEmail(c.FormValue("email"))
		if err != nil {
			return flashError(c, "There is a problem with the login process", "/login")
		}

		if !models.CheckPasswordHash(c.FormValue("password"), user.Password) {
			return flashError(c, "There is a problem with the login process", "/login")
		}

		if user.Status == models.STATUS_DISABLED {
			return flashError(c, "This account is disabled", "/login")
		}

		if err := startUserSession(c, user); err != nil {
			return flashError(c, fmt.Sprintf("something went wrong: %s", err), "/login")
		}

		now := time.Now()
		user.LastLoginAt = &now
		_ = userRepo.Update(user)

		return flashSuccess(c, "Welcome back!", "/dashboard")
	}

	return c.Render("auth/login", viewData(c, fiber.Map{
		"Title": "Log in",
	}))
}

func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return flashError(c, "logged out (no sess)", "/login")
	}

	if err := sess.Destroy(); err != nil {
		return flashError(c, fmt.Sprintf("something went wrong: %s", err), "/login")
	}

	c.Locals(usercontext.KeyFromProtected, false)

	return flashSuccess(c, "See you soon!", "/login")
}

func HandleAuthRegister(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		user, err := models.CreateUser(c.FormValue("username"), c.FormValue("email"), c.FormValue("password"))
		if err != nil {
			return flashError(c, fmt.Sprintf("something went wrong: %s", err), "/register")
		}
		user.AvatarURL = utils.GetGravatarURL(user.Email, 200)

		token, err := models.GenerateActivationToken()
		if err != nil {
			return flashError(c, fmt.Sprintf("something went wrong: %s", err), "/register")
		}
		now := time.Now()
		user.ActivationToken = token
		user.ActivationSentAt = &now

		if err := repository.GetGlobalRepositories().User.Create(user); err != nil {
			return flashError(c, "This email address is already registered", "/register")
		}

		sendActivationMail(user)

		return flashSuccess(c, "Account created! Please check your inbox to activate it.", "/login")
	}

	return c.Render("auth/register", viewData(c, fiber.Map{
		"Title": "Sign up",
	}))
}

// HandleAuthActivate confirms the email address behind an activation token.
func HandleAuthActivate(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return flashError(c, "Invalid activation link", "/login")
	}

	userRepo := repository.GetGlobalRepositories().User
	user, err := userRepo.GetByActivationToken(token)
	if err != nil {
		return flashError(c, "Invalid or expired activation link", "/login")
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := userRepo.Update(user); err != nil {
		return flashError(c, "Activation failed, please try again", "/login")
	}

	sendWelcomeMail(user)

	return flashSuccess(c, "Your account is activated. You can log in now!", "/login")
}

func startUserSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}

	sess.Set(AUTH_KEY, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUserName, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)

	if err := sess.Save(); err != nil {
		return err
	}

	// Drop any cached plan, the middleware re-resolves it on first request
	_ = session.SetSessionValue(c, "user_plan", "")
	return nil
}

func sendActivationMail(user *models.User) {
	payload := jobqueue.EmailJobPayload{
		To:       user.Email,
		Subject:  "Activate your Taskfox account",
		Template: jobqueue.EmailTemplateActivation,
		Data: map[string]string{
			"Name":          user.Name,
			"ActivationURL": env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000") + "/activate/" + user.ActivationToken,
		},
	}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeEmail, payload.ToMap()); err != nil {
		// Registration succeeded, the user can request a new mail later
		fmt.Printf("failed to enqueue activation mail: %v\n", err)
	}
}

func sendWelcomeMail(user *models.User) {
	payload := jobqueue.EmailJobPayload{
		To:       user.Email,
		Subject:  "Welcome to Taskfox",
		Template: jobqueue.EmailTemplateWelcome,
		Data: map[string]string{
			"Name":         user.Name,
			"DashboardURL": env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000") + "/dashboard",
		},
	}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeEmail, payload.ToMap()); err != nil {
		// Activation succeeded either way, the mail is a courtesy
		fmt.Printf("failed to enqueue welcome mail: %v\n", err)
	}
}

package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"goodscommunity/internal/log"
	"goodscommunity/internal/services"
	"goodscommunity/internal/validate"
)

type EmailHandler struct {
	Email *services.EmailService
}

type emailRequest struct {
	Email string `json:"email" form:"email"`
}

// requestedEmail accepts {"email": ...}, a form field, or the bare address
// as the body.
func requestedEmail(c *fiber.Ctx) string {
	var req emailRequest
	if err := c.BodyParser(&req); err == nil && req.Email != "" {
		return req.Email
	}
	return strings.Trim(strings.TrimSpace(string(c.Body())), `"`)
}

func (h *EmailHandler) Signup(c *fiber.Ctx) error {
	email := requestedEmail(c)
	sent, err := h.Email.RequestEmailVerification(c.UserContext(), email)
	if err != nil {
		return fail(c, "email.request.fail", err)
	}
	if !sent {
		log.Info(c, "email.request.unsent", map[string]any{"email": email})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "message": "Verification mail could not be sent"})
	}
	log.Audit(c, "email.request", map[string]any{"email": email})
	return ok(c, fiber.StatusOK, "Verification mail sent", nil)
}

type checkKeyRequest struct {
	Email   string `json:"email" validate:"required,email"`
	AuthKey string `json:"authKey" validate:"required,len=6"`
}

func (h *EmailHandler) CheckAuthKey(c *fiber.Ctx) error {
	var req checkKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, "email.check.fail", err)
	}
	if err := h.Email.CheckEmailVerification(c.UserContext(), req.Email, req.AuthKey); err != nil {
		return fail(c, "email.check.fail", err)
	}
	log.Audit(c, "email.verified", map[string]any{"email": req.Email})
	return ok(c, fiber.StatusOK, "Email verified", nil)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"goodscommunity/internal/domain"
	applog "goodscommunity/internal/log"
)

// statusOf maps a failure kind to the HTTP status the API answers with.
func statusOf(k domain.Kind) int {
	switch k {
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict:
		return fiber.StatusConflict
	case domain.KindUnauthorized, domain.KindInvalidCredential:
		return fiber.StatusUnauthorized
	case domain.KindForbidden:
		return fiber.StatusForbidden
	case domain.KindInvalidArgument:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

const genericFailure = "Something went wrong. Please try again."

// fail writes {success:false, message} for err. Internal causes are logged,
// never sent.
func fail(c *fiber.Ctx, action string, err error) error {
	kind := domain.KindOf(err)
	msg := domain.MessageOf(err, genericFailure)
	switch kind {
	case domain.KindInternal:
		applog.Error(c, action, err, nil)
		msg = genericFailure
	case domain.KindUnauthorized, domain.KindInvalidCredential, domain.KindForbidden:
		applog.Security(c, action, map[string]any{"kind": kind.String()})
	default:
		applog.Info(c, action, map[string]any{"kind": kind.String()})
	}
	return c.Status(statusOf(kind)).JSON(fiber.Map{"success": false, "message": msg})
}

// ok writes {success:true, message} plus extra keys.
func ok(c *fiber.Ctx, status int, message string, extra fiber.Map) error {
	body := fiber.Map{"success": true, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// badRequest is for malformed transport input caught before the services.
func badRequest(c *fiber.Ctx, field, message string) error {
	applog.Security(c, "validation.fail", map[string]any{"field": field})
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": message})
}

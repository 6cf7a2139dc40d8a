package handlers

import (
	"github.com/gofiber/fiber/v2"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/session"
)

const memberLocal = "member"

// RequireMember lets the request through only with a logged-in session and
// puts the member snapshot into c.Locals("member").
func RequireMember(store session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(sidCookie)
		if sid == "" {
			return fail(c, "access.denied", domain.Unauthorized("login required"))
		}
		m, err := session.New(sid, store).Member(c.UserContext())
		if err != nil {
			return fail(c, "session.lookup", err)
		}
		if m == nil {
			return fail(c, "access.denied", domain.Unauthorized("login required"))
		}
		c.Locals(memberLocal, m)
		return c.Next()
	}
}

// memberOf returns the snapshot RequireMember stored, if any.
func memberOf(c *fiber.Ctx) *domain.MemberView {
	m, _ := c.Locals(memberLocal).(*domain.MemberView)
	return m
}

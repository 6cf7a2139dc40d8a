package handlers

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/log"
	"goodscommunity/internal/services"
	"goodscommunity/internal/session"
	"goodscommunity/internal/validate"
)

const sidCookie = "sid"

type AuthHandler struct {
	Members      *services.MemberService
	Sessions     session.Store
	CookieSecure bool
}

func ensureSID(c *fiber.Ctx, secure bool) string {
	sid := c.Cookies(sidCookie)
	if sid == "" {
		sid = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     sidCookie,
			Value:    sid,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
			Secure:   secure,
		})
	}
	return sid
}

func (h *AuthHandler) session(c *fiber.Ctx) *session.Session {
	return session.New(ensureSID(c, h.CookieSecure), h.Sessions)
}

type loginRequest struct {
	Email    string `json:"memberEmail" form:"memberEmail" validate:"required,email"`
	Password string `json:"memberPassword" form:"memberPassword" validate:"required,max=72"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		log.Security(c, "auth.login.fail", map[string]any{"email": req.Email, "reason": "bad_format"})
		return fail(c, "auth.login.fail", err)
	}

	view, err := h.Members.Authenticate(c.UserContext(), req.Email, req.Password, h.session(c))
	if err != nil {
		return fail(c, "auth.login.fail", err)
	}
	log.Audit(c, "auth.login.success", map[string]any{"email": view.Email})
	return ok(c, fiber.StatusOK, "Logged in", fiber.Map{"member": view})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sid := c.Cookies(sidCookie)
	if err := h.Members.Logout(c.UserContext(), session.New(sid, h.Sessions)); err != nil {
		return fail(c, "auth.logout", err)
	}
	// Expire cookie
	c.Cookie(&fiber.Cookie{
		Name:     sidCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   h.CookieSecure,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
	log.Audit(c, "auth.logout", map[string]any{"sid": sid})
	return ok(c, fiber.StatusOK, "Logged out", nil)
}

func (h *AuthHandler) Check(c *fiber.Ctx) error {
	sid := c.Cookies(sidCookie)
	authed, view, err := h.Members.CheckStatus(c.UserContext(), session.New(sid, h.Sessions))
	if err != nil {
		return fail(c, "auth.check", err)
	}
	body := fiber.Map{"success": true, "loggedIn": authed}
	if authed {
		body["member"] = view
	}
	return c.JSON(body)
}

type signupRequest struct {
	Email    string `json:"memberEmail" validate:"required,email,max=100"`
	Name     string `json:"memberName" validate:"required,max=30"`
	Password string `json:"memberPassword" validate:"required,password"`
	Phone    string `json:"memberPhone" validate:"max=20"`
	Address  string `json:"memberAddress" validate:"max=200"`
}

func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, "auth.signup.fail", err)
	}
	view, err := h.Members.RegisterMember(c.UserContext(), services.Registration{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		return fail(c, "auth.signup.fail", err)
	}
	log.Audit(c, "auth.signup.success", map[string]any{"email": view.Email})
	return ok(c, fiber.StatusCreated, "Signed up", fiber.Map{"member": view})
}

type updateRequest struct {
	Email           string `json:"memberEmail" validate:"omitempty,email,max=100"`
	Name            string `json:"memberName" validate:"required,max=30"`
	Phone           string `json:"memberPhone" validate:"max=20"`
	Address         string `json:"memberAddress" validate:"max=200"`
	Password        string `json:"memberPassword" validate:"omitempty,password"`
	CurrentPassword string `json:"currentPassword" validate:"max=72"`
}

func (h *AuthHandler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, "auth.update.fail", err)
	}
	sid := c.Cookies(sidCookie)
	view, err := h.Members.UpdateMember(c.UserContext(), domain.MemberPatch{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Password: req.Password,
	}, req.CurrentPassword, session.New(sid, h.Sessions))
	if err != nil {
		return fail(c, "auth.update.fail", err)
	}
	log.Audit(c, "auth.update.success", map[string]any{"email": view.Email, "password_changed": req.Password != ""})
	return ok(c, fiber.StatusOK, "Profile updated", fiber.Map{"member": view})
}

func (h *AuthHandler) ProfileImage(c *fiber.Ctx) error {
	sid := c.Cookies(sidCookie)
	claimed := c.FormValue("memberEmail")
	up, err := readUpload(c, "file")
	if err != nil {
		return fail(c, "auth.profile_image.read", err)
	}
	ref, err := h.Members.UpdateProfileImage(c.UserContext(), session.New(sid, h.Sessions), claimed, up)
	if err != nil {
		return fail(c, "auth.profile_image.fail", err)
	}
	log.Audit(c, "auth.profile_image.success", map[string]any{"email": claimed, "ref": ref})
	return ok(c, fiber.StatusOK, "Profile image updated", fiber.Map{"imageUrl": ref})
}

// readUpload reads the multipart field into memory, at most one byte past
// the image cap. A missing field yields an empty upload so the services can
// report it.
func readUpload(c *fiber.Ctx, field string) (domain.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return domain.Upload{}, nil
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, services.MaxImageBytes+1))
	if err != nil {
		return domain.Upload{}, err
	}
	return domain.Upload{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

package handlers

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	applog "goodscommunity/internal/log"
)

const streamPath = "/api/notifications/stream"

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"success": false, "message": fe.Message})
	}
	// Log and show a friendly message; never leak internals
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": genericFailure})
}

// NewApp builds the fiber app with middleware and every route.
func NewApp(d *Deps) *fiber.App {
	cfg := d.Config
	app := fiber.New(fiber.Config{
		Views:        Views(),
		BodyLimit:    cfg.HTTP.BodyLimit,
		ErrorHandler: errorHandler,
	})

	// ---------- Middlewares ----------
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(applog.Access())
	app.Use(helmet.New())
	if cfg.HTTP.RateMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.HTTP.RateMax,
			Expiration: cfg.HTTP.RateWindow,
			Next: func(c *fiber.Ctx) bool {
				p := c.Path()
				return strings.HasPrefix(p, "/media/") || p == streamPath || p == "/healthz"
			},
			LimitReached: func(c *fiber.Ctx) error {
				applog.Security(c, "rate.global.hit", nil)
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "rate limit exceeded, retry soon"})
			},
		}))
	}
	if cfg.HTTP.CSRF {
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "header:" + csrf.HeaderName,
			CookieName:     "csrf_",
			CookieSameSite: "Lax",
			CookieSecure:   cfg.HTTP.CookieSecure,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				applog.Security(c, "csrf.fail", map[string]any{"error": err.Error()})
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "Security check failed. Please refresh and try again."})
			},
		}))
	}

	// ---------- Media ----------
	if cfg.Blob.Backend == "local" {
		mediaDir := cfg.MediaDir
		if !filepath.IsAbs(mediaDir) {
			if abs, err := filepath.Abs(mediaDir); err == nil {
				mediaDir = abs
			}
		}
		// Guarded media to avoid traversal
		app.Get("/media/*", func(c *fiber.Ctx) error {
			path := c.Params("*")
			rawLower := strings.ToLower(path)
			if strings.Contains(rawLower, "..") || strings.Contains(rawLower, "%2e") || strings.Contains(rawLower, "\x00") {
				applog.Security(c, "media.traversal.block", map[string]any{"path": path})
				return c.SendStatus(fiber.StatusNotFound)
			}
			clean := filepath.Clean(path)
			if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
				applog.Security(c, "media.traversal.block", map[string]any{"path": path})
				return c.SendStatus(fiber.StatusNotFound)
			}
			return c.SendFile(filepath.Join(mediaDir, clean), false)
		})
	}

	member := RequireMember(d.Sessions)

	// ---------- Auth ----------
	auth := app.Group("/api/auth")
	auth.Post("/login", limiter.New(limiter.Config{
		Max:        cfg.HTTP.LoginRateMax,
		Expiration: cfg.HTTP.LoginRateWindow,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "Too many attempts. Please try again later."})
		},
	}), d.AuthHandler.Login)
	auth.Post("/logout", d.AuthHandler.Logout)
	auth.Get("/check", d.AuthHandler.Check)
	auth.Post("/signup", d.AuthHandler.Signup)
	auth.Put("/update", d.AuthHandler.Update)
	auth.Post("/profile-image", d.AuthHandler.ProfileImage)

	// ---------- Products ----------
	products := app.Group("/api/product")
	products.Get("/all", d.ProductHandler.All)
	products.Get("/search", d.ProductHandler.Search)
	products.Get("/code/:code", d.ProductHandler.ByCode)
	products.Get("/category/:category", d.ProductHandler.Category)
	products.Get("/:id", d.ProductHandler.Detail)
	products.Post("/", member, d.ProductHandler.Create)
	products.Put("/:id", member, d.ProductHandler.Update)
	products.Delete("/:id", member, d.ProductHandler.Delete)
	products.Patch("/:id/stock", member, d.ProductHandler.Stock)
	products.Post("/:id/image", member, d.ProductHandler.Image)

	// ---------- Email verification ----------
	email := app.Group("/api/email")
	email.Post("/signup", d.EmailHandler.Signup)
	email.Post("/checkAuthKey", d.EmailHandler.CheckAuthKey)

	// ---------- Notifications ----------
	app.Get(streamPath, d.NotificationHandler.Stream)
	app.Post("/api/notifications", member, d.NotificationHandler.Publish)

	// Pages, health & 404
	app.Get("/", d.HomeHandler.Index)
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Not found"})
	})
	return app
}

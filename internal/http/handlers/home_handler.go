package handlers

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	html "github.com/gofiber/template/html/v2"

	"goodscommunity/internal/services"
	"goodscommunity/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Views returns the template engine for the embedded pages.
func Views() *html.Engine {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	return html.NewFileSystem(http.FS(sub), ".html")
}

type HomeHandler struct {
	Products *services.ProductService
	Sessions session.Store
}

func (h *HomeHandler) Index(c *fiber.Ctx) error {
	products, err := h.Products.ListProducts(c.UserContext())
	if err != nil {
		return err
	}
	data := fiber.Map{"Title": "GoodsCommunity", "Products": products}
	if sid := c.Cookies(sidCookie); sid != "" {
		if m, err := session.New(sid, h.Sessions).Member(c.UserContext()); err == nil && m != nil {
			data["Member"] = m
		}
	}
	return c.Render("index", data)
}

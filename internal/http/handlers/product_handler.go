package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/log"
	"goodscommunity/internal/services"
	"goodscommunity/internal/validate"
)

type ProductHandler struct {
	Products *services.ProductService
}

type productRequest struct {
	Name          string          `json:"productName" validate:"required,max=100"`
	Code          string          `json:"productCode" validate:"required,code"`
	Category      string          `json:"category" validate:"max=50"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity" validate:"gte=0"`
	Description   string          `json:"description" validate:"max=2000"`
	Manufacturer  string          `json:"manufacturer" validate:"max=100"`
	Active        *bool           `json:"isActive"`
}

func (r productRequest) product() domain.Product {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return domain.Product{
		Name:          r.Name,
		Code:          r.Code,
		Category:      r.Category,
		Price:         r.Price,
		StockQuantity: r.StockQuantity,
		Description:   r.Description,
		Manufacturer:  r.Manufacturer,
		Active:        active,
	}
}

func productID(c *fiber.Ctx) (int64, bool) {
	return validate.ID(c.Params("id"))
}

func (h *ProductHandler) All(c *fiber.Ctx) error {
	products, err := h.Products.ListProducts(c.UserContext())
	if err != nil {
		return fail(c, "product.list", err)
	}
	return c.JSON(products)
}

func (h *ProductHandler) Detail(c *fiber.Ctx) error {
	id, valid := productID(c)
	if !valid {
		log.Security(c, "validation.fail", map[string]any{"field": "id"})
		return fail(c, "product.detail", domain.NotFound("product not found"))
	}
	p, err := h.Products.GetProduct(c.UserContext(), id)
	if err != nil {
		return fail(c, "product.detail", err)
	}
	return c.JSON(p)
}

func (h *ProductHandler) ByCode(c *fiber.Ctx) error {
	code, valid := validate.Code(c.Params("code"))
	if !valid {
		log.Security(c, "validation.fail", map[string]any{"field": "code"})
		return fail(c, "product.by_code", domain.NotFound("product not found"))
	}
	p, err := h.Products.GetProductByCode(c.UserContext(), code)
	if err != nil {
		return fail(c, "product.by_code", err)
	}
	return c.JSON(p)
}

func (h *ProductHandler) Category(c *fiber.Ctx) error {
	products, err := h.Products.ProductsByCategory(c.UserContext(), c.Params("category"))
	if err != nil {
		return fail(c, "product.by_category", err)
	}
	return c.JSON(products)
}

func (h *ProductHandler) Search(c *fiber.Ctx) error {
	raw := c.Query("keyword")
	q, valid := validate.Q(raw)
	if !valid {
		if raw != "" {
			log.Security(c, "validation.fail", map[string]any{"field": "keyword"})
		}
		return c.JSON([]domain.Product{})
	}
	products, err := h.Products.SearchProducts(c.UserContext(), q)
	if err != nil {
		return fail(c, "product.search", err)
	}
	return c.JSON(products)
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, "product.create.fail", err)
	}
	id, err := h.Products.InsertProduct(c.UserContext(), req.product())
	if err != nil {
		return fail(c, "product.create.fail", err)
	}
	log.Audit(c, "product.create", map[string]any{"id": id, "code": req.Code, "by": memberEmail(c)})
	return ok(c, fiber.StatusCreated, "Product created", fiber.Map{"productId": id})
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	id, valid := productID(c)
	if !valid {
		return badRequest(c, "id", "Invalid product id")
	}
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, "product.update.fail", err)
	}
	p, err := h.Products.UpdateProduct(c.UserContext(), id, req.product())
	if err != nil {
		return fail(c, "product.update.fail", err)
	}
	log.Audit(c, "product.update", map[string]any{"id": id, "by": memberEmail(c)})
	return ok(c, fiber.StatusOK, "Product updated", fiber.Map{"productId": p.ID, "product": p})
}

func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	id, valid := productID(c)
	if !valid {
		return badRequest(c, "id", "Invalid product id")
	}
	if err := h.Products.DeleteProduct(c.UserContext(), id); err != nil {
		return fail(c, "product.delete.fail", err)
	}
	log.Audit(c, "product.delete", map[string]any{"id": id, "by": memberEmail(c)})
	return ok(c, fiber.StatusOK, "Product deleted", fiber.Map{"productId": id})
}

// Stock applies a signed delta from ?quantity=.
func (h *ProductHandler) Stock(c *fiber.Ctx) error {
	id, valid := productID(c)
	if !valid {
		return badRequest(c, "id", "Invalid product id")
	}
	delta, valid := validate.Delta(c.Query("quantity"))
	if !valid {
		return badRequest(c, "quantity", "quantity must be an integer")
	}
	stock, err := h.Products.AdjustStock(c.UserContext(), id, delta)
	if err != nil {
		return fail(c, "product.stock.fail", err)
	}
	log.Audit(c, "product.stock", map[string]any{"id": id, "delta": delta, "stock": stock, "by": memberEmail(c)})
	return ok(c, fiber.StatusOK, "Stock updated", fiber.Map{"productId": id, "stockQuantity": stock})
}

func (h *ProductHandler) Image(c *fiber.Ctx) error {
	id, valid := productID(c)
	if !valid {
		return badRequest(c, "id", "Invalid product id")
	}
	up, err := readUpload(c, "file")
	if err != nil {
		return fail(c, "product.image.read", err)
	}
	ref, err := h.Products.UpdateProductImage(c.UserContext(), id, up)
	if err != nil {
		return fail(c, "product.image.fail", err)
	}
	log.Audit(c, "product.image", map[string]any{"id": id, "ref": ref, "by": memberEmail(c)})
	return ok(c, fiber.StatusOK, "Product image updated", fiber.Map{"productId": id, "imageUrl": ref})
}

func memberEmail(c *fiber.Ctx) string {
	if m := memberOf(c); m != nil {
		return m.Email
	}
	return ""
}

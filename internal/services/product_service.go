package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"goodscommunity/internal/blob"
	"goodscommunity/internal/domain"
)

type ProductService struct {
	Products ProductStore
	Blobs    blob.Store
	Notify   Notifier
	Log      *zap.Logger
}

func NewProductService(products ProductStore, blobs blob.Store, notify Notifier, log *zap.Logger) *ProductService {
	return &ProductService{Products: products, Blobs: blobs, Notify: orNopNotifier(notify), Log: orNop(log)}
}

const errNoProduct = "product not found"

func checkProduct(p *domain.Product) error {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	switch {
	case p.Code == "":
		return domain.InvalidArgument("product code is required")
	case p.Name == "":
		return domain.InvalidArgument("product name is required")
	case p.Price.IsNegative():
		return domain.InvalidArgument("price cannot be negative")
	case p.StockQuantity < 0:
		return domain.InvalidArgument("stock cannot be negative")
	}
	return nil
}

func (s *ProductService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	out, err := s.Products.List(ctx)
	if err != nil {
		return nil, internal(s.Log, "product.list", err)
	}
	return out, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.Products.ByID(ctx, id)
	if err != nil {
		return domain.Product{}, internal(s.Log, "product.get", err, zap.Int64("id", id))
	}
	if p == nil {
		return domain.Product{}, domain.NotFound(errNoProduct)
	}
	return *p, nil
}

func (s *ProductService) GetProductByCode(ctx context.Context, code string) (domain.Product, error) {
	p, err := s.Products.ByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return domain.Product{}, internal(s.Log, "product.get_by_code", err, zap.String("code", code))
	}
	if p == nil {
		return domain.Product{}, domain.NotFound(errNoProduct)
	}
	return *p, nil
}

func (s *ProductService) ProductsByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	out, err := s.Products.ByCategory(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, internal(s.Log, "product.by_category", err, zap.String("category", category))
	}
	return out, nil
}

// SearchProducts matches keyword against names and descriptions. A blank
// keyword matches nothing.
func (s *ProductService) SearchProducts(ctx context.Context, keyword string) ([]domain.Product, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []domain.Product{}, nil
	}
	out, err := s.Products.Search(ctx, keyword)
	if err != nil {
		return nil, internal(s.Log, "product.search", err)
	}
	return out, nil
}

// InsertProduct stores p and returns its new id.
func (s *ProductService) InsertProduct(ctx context.Context, p domain.Product) (int64, error) {
	if err := checkProduct(&p); err != nil {
		return 0, err
	}
	// images are attached only through UpdateProductImage
	p.ImageURL = nil
	existing, err := s.Products.ByCode(ctx, p.Code)
	if err != nil {
		return 0, internal(s.Log, "product.insert.lookup", err, zap.String("code", p.Code))
	}
	if existing != nil {
		return 0, domain.Conflict("product code already exists")
	}

	n, err := s.Products.Insert(ctx, &p)
	if err != nil {
		return 0, storeErr(s.Log, "product.insert", err, "product code already exists", zap.String("code", p.Code))
	}
	if n == 0 {
		return 0, internal(s.Log, "product.insert", errZeroRows, zap.String("code", p.Code))
	}
	s.Log.Info("product.insert", zap.Int64("id", p.ID), zap.String("code", p.Code))
	return p.ID, nil
}

// UpdateProduct replaces the product id with patch. The id and creation time
// and the current image are kept.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, patch domain.Product) (domain.Product, error) {
	current, err := s.Products.ByID(ctx, id)
	if err != nil {
		return domain.Product{}, internal(s.Log, "product.update.lookup", err, zap.Int64("id", id))
	}
	if current == nil {
		return domain.Product{}, domain.NotFound(errNoProduct)
	}
	if err := checkProduct(&patch); err != nil {
		return domain.Product{}, err
	}
	if patch.Code != current.Code {
		other, err := s.Products.ByCode(ctx, patch.Code)
		if err != nil {
			return domain.Product{}, internal(s.Log, "product.update.lookup", err, zap.String("code", patch.Code))
		}
		if other != nil && other.ID != id {
			return domain.Product{}, domain.Conflict("product code already exists")
		}
	}

	patch.ID = id
	patch.CreatedAt = current.CreatedAt
	patch.ImageURL = current.ImageURL
	n, err := s.Products.Update(ctx, &patch)
	if err != nil {
		return domain.Product{}, storeErr(s.Log, "product.update", err, "product code already exists", zap.Int64("id", id))
	}
	if n == 0 {
		return domain.Product{}, internal(s.Log, "product.update", errZeroRows, zap.Int64("id", id))
	}
	return patch, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	current, err := s.Products.ByID(ctx, id)
	if err != nil {
		return internal(s.Log, "product.delete.lookup", err, zap.Int64("id", id))
	}
	if current == nil {
		return domain.NotFound(errNoProduct)
	}
	n, err := s.Products.Delete(ctx, id)
	if err != nil {
		return internal(s.Log, "product.delete", err, zap.Int64("id", id))
	}
	if n == 0 {
		return internal(s.Log, "product.delete", errZeroRows, zap.Int64("id", id))
	}
	if current.ImageURL != nil && inDir(*current.ImageURL, productImageDir) && s.Blobs != nil {
		if err := s.Blobs.Delete(ctx, *current.ImageURL); err != nil {
			s.Log.Warn("blob.delete", zap.String("ref", *current.ImageURL), zap.Error(err))
		}
	}
	return nil
}

// AdjustStock adds the signed delta to the stock of id and returns the new
// stock. A result below zero is rejected and nothing is written; a zero
// delta writes nothing and notifies no one.
func (s *ProductService) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	current, err := s.Products.ByID(ctx, id)
	if err != nil {
		return 0, internal(s.Log, "product.stock.lookup", err, zap.Int64("id", id))
	}
	if current == nil {
		return 0, domain.NotFound(errNoProduct)
	}
	if current.StockQuantity+delta < 0 {
		return 0, domain.InvalidArgument("resulting stock cannot be negative")
	}
	if delta == 0 {
		return current.StockQuantity, nil
	}

	stock, n, err := s.Products.AdjustStock(ctx, id, delta)
	if err != nil {
		return 0, internal(s.Log, "product.stock", err, zap.Int64("id", id))
	}
	if n == 0 {
		// lost a race with another writer; find out which way
		again, err := s.Products.ByID(ctx, id)
		switch {
		case err != nil:
			return 0, internal(s.Log, "product.stock.recheck", err, zap.Int64("id", id))
		case again == nil:
			return 0, domain.NotFound(errNoProduct)
		case again.StockQuantity+delta < 0:
			return 0, domain.InvalidArgument("resulting stock cannot be negative")
		default:
			return 0, internal(s.Log, "product.stock", errZeroRows, zap.Int64("id", id))
		}
	}

	s.Notify.Broadcast(domain.NewEvent(domain.EventStockChanged, map[string]any{
		"productId":   id,
		"productCode": current.Code,
		"stock":       stock,
		"delta":       delta,
	}))
	return stock, nil
}

// UpdateProductImage stores a new image for product id and returns its
// reference.
func (s *ProductService) UpdateProductImage(ctx context.Context, id int64, up domain.Upload) (string, error) {
	current, err := s.Products.ByID(ctx, id)
	if err != nil {
		return "", internal(s.Log, "product.image.lookup", err, zap.Int64("id", id))
	}
	if current == nil {
		return "", domain.NotFound(errNoProduct)
	}
	if err := checkImage(up); err != nil {
		return "", err
	}

	ref, err := s.Blobs.Put(ctx, blobName(productImageDir, up), up.ContentType, up.Data)
	if err != nil {
		return "", internal(s.Log, "product.image.put", err, zap.Int64("id", id))
	}
	n, err := s.Products.UpdateImage(ctx, id, ref)
	if err == nil && n == 0 {
		err = errZeroRows
	}
	if err != nil {
		if derr := s.Blobs.Delete(ctx, ref); derr != nil {
			s.Log.Warn("blob.delete", zap.String("ref", ref), zap.Error(derr))
		}
		return "", internal(s.Log, "product.image.update", err, zap.Int64("id", id))
	}
	if old := current.ImageURL; old != nil && inDir(*old, productImageDir) && *old != ref {
		if err := s.Blobs.Delete(ctx, *old); err != nil {
			s.Log.Warn("blob.delete", zap.String("ref", *old), zap.Error(err))
		}
	}
	return ref, nil
}

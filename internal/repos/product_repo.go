package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"goodscommunity/internal/domain"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

const productColumns = `
    id, product_name, product_code, category, price, stock_quantity, description, manufacturer,
    image_url, is_active, COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at`

func (r *ProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+productColumns+` FROM products ORDER BY id DESC`)
	return out, err
}

// ByID returns nil, nil when the product does not exist.
func (r *ProductRepo) ByID(ctx context.Context, id int64) (*domain.Product, error) {
	return r.one(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

// ByCode returns nil, nil when no product has that code.
func (r *ProductRepo) ByCode(ctx context.Context, code string) (*domain.Product, error) {
	return r.one(ctx, `SELECT `+productColumns+` FROM products WHERE product_code = ?`, code)
}

func (r *ProductRepo) one(ctx context.Context, query string, arg any) (*domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

func (r *ProductRepo) ByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+productColumns+` FROM products
		WHERE category = ? AND is_active = 1
		ORDER BY id DESC`, category)
	return out, err
}

func (r *ProductRepo) Search(ctx context.Context, keyword string) ([]domain.Product, error) {
	like := "%" + keyword + "%"
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+productColumns+` FROM products
		WHERE is_active = 1 AND (LOWER(product_name) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?))
		ORDER BY id DESC`, like, like)
	return out, err
}

// Insert writes p and sets p.ID. It returns the number of rows written.
func (r *ProductRepo) Insert(ctx context.Context, p *domain.Product) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO products(product_name,product_code,category,price,stock_quantity,description,manufacturer,image_url,is_active,created_at)
		VALUES(?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)`,
		p.Name, p.Code, p.Category, p.Price, p.StockQuantity, p.Description, p.Manufacturer, p.ImageURL, p.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert product: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("last insert id: %w", err)
		}
		p.ID = id
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Update replaces every mutable column of the row with id p.ID.
func (r *ProductRepo) Update(ctx context.Context, p *domain.Product) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET product_name=?, product_code=?, category=?, price=?, stock_quantity=?, description=?,
		    manufacturer=?, image_url=?, is_active=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=?`,
		p.Name, p.Code, p.Category, p.Price, p.StockQuantity, p.Description, p.Manufacturer, p.ImageURL, p.Active, p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("update product: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *ProductRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id=?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete product: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AdjustStock adds delta to the stock of id only if the result stays
// non-negative. It returns the new stock and the number of rows changed; zero
// rows means the product is gone or the guard rejected the delta.
func (r *ProductRepo) AdjustStock(ctx context.Context, id int64, delta int) (int, int64, error) {
	var stock int
	err := r.db.GetContext(ctx, &stock, `
		UPDATE products
		SET stock_quantity = stock_quantity + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_quantity + ? >= 0
		RETURNING stock_quantity`, delta, id, delta)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("adjust stock: %w", err)
	}
	return stock, 1, nil
}

func (r *ProductRepo) UpdateImage(ctx context.Context, id int64, ref string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET image_url=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, ref, id)
	if err != nil {
		return 0, fmt.Errorf("update product image: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"product_name" json:"productName"`
	Code          string          `db:"product_code" json:"productCode"`
	Category      string          `db:"category" json:"category"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stockQuantity"`
	Description   string          `db:"description" json:"description"`
	Manufacturer  string          `db:"manufacturer" json:"manufacturer"`
	ImageURL      *string         `db:"image_url" json:"imageUrl"`
	Active        bool            `db:"is_active" json:"isActive"`
	CreatedAt     string          `db:"created_at" json:"createdAt"`
	UpdatedAt     string          `db:"updated_at" json:"updatedAt"`
}

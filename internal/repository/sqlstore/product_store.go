package sqlstore

import (
	"context"
	"database/sql"

	"github.com/cassiomorais/paybridge/internal/domain/product"
)

// ProductSchema maps product.Product onto pb_products.
var ProductSchema = Schema[product.Product]{
	Table:      "pb_products",
	PrimaryKey: "product_id",
	Columns:    []string{"product_id", "product_name", "product_image", "price", "game_value", "created_at"},
	Writable:   []string{"product_name", "product_image", "price", "game_value"},
	Scan:       scanProduct,
}

func scanProduct(s Scanner) (*product.Product, error) {
	var (
		p     product.Product
		image sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Name, &image, &p.Price, &p.GameValue, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Image = image.String
	return &p, nil
}

// ProductStore reads the product catalog.
type ProductStore struct {
	repo *Repository[product.Product]
}

// NewProductStore creates a new ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{repo: NewRepository(ProductSchema)}
}

// Find returns the product or nil when it does not exist.
func (s *ProductStore) Find(ctx context.Context, tx Tx, id int64) (*product.Product, error) {
	return s.repo.Find(ctx, tx, id)
}

// Create inserts a catalog row. The workflows never write products; this
// exists for seeding and tests.
func (s *ProductStore) Create(ctx context.Context, tx Tx, p *product.Product) (*product.Product, error) {
	return s.repo.Insert(ctx, tx, Fields{
		"product_name":  p.Name,
		"product_image": p.Image,
		"price":         p.Price,
		"game_value":    p.GameValue,
	})
}

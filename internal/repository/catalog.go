package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrProductNotFound = errors.New("product not found")

// Catalog resolves authoritative unit prices from the products table. It is
// the price source the checkout verifier trusts over anything the client
// claims.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(r *Repository) *Catalog {
	return &Catalog{db: r.db}
}

func (c *Catalog) UnitPrice(ctx context.Context, productRef string) (float64, error) {
	var price float64
	err := c.db.QueryRowContext(ctx,
		`SELECT price FROM products WHERE product_ref = $1 AND active`, productRef).
		Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("price lookup failed: %w", err)
	}
	return price, nil
}

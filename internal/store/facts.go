package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DailyFact is the stored per-product, per-day measurement row. Price and
// amount columns are nullable: absence means the source carried no finite
// value, which readers treat differently from a stored zero.
type DailyFact struct {
	ProductID         int64
	Date              time.Time
	OpeningInventory  float64
	ProcurementQty    float64
	ProcurementPrice  decimal.NullDecimal
	ProcurementAmount decimal.NullDecimal
	SalesQty          float64
	SalesPrice        decimal.NullDecimal
	SalesAmount       decimal.NullDecimal
	ImportBatchID     int64
}

// ListProductsByOwner returns the user's products ordered by name. When ids
// is non-empty the result is limited to those product ids.
func (s *Store) ListProductsByOwner(ctx context.Context, userID int64, ids []int64) ([]Product, error) {
	query := `
		SELECT id, product_code, name, uploaded_by, created_at
		FROM products
		WHERE uploaded_by = $1
		ORDER BY name ASC`
	args := []any{userID}
	if len(ids) > 0 {
		query = `
		SELECT id, product_code, name, uploaded_by, created_at
		FROM products
		WHERE uploaded_by = $1 AND id = ANY($2)
		ORDER BY name ASC`
		args = append(args, ids)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.UploadedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListDailyFactsByProducts returns every fact for the given products ordered
// by date then product, the order the dashboard charts consume.
func (s *Store) ListDailyFactsByProducts(ctx context.Context, productIDs []int64) ([]DailyFact, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT product_id, date, opening_inventory,
		       procurement_qty, procurement_price, procurement_amount,
		       sales_qty, sales_price, sales_amount,
		       import_batch_id
		FROM daily_facts
		WHERE product_id = ANY($1)
		ORDER BY date ASC, product_id ASC
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("list daily facts: %w", err)
	}
	defer rows.Close()

	var facts []DailyFact
	for rows.Next() {
		var f DailyFact
		if err := rows.Scan(&f.ProductID, &f.Date, &f.OpeningInventory,
			&f.ProcurementQty, &f.ProcurementPrice, &f.ProcurementAmount,
			&f.SalesQty, &f.SalesPrice, &f.SalesAmount,
			&f.ImportBatchID); err != nil {
			return nil, fmt.Errorf("scan daily fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// CountDailyFactsByProducts reports how many fact rows exist for the given
// products. Used by tests to assert idempotent re-imports.
func (s *Store) CountDailyFactsByProducts(ctx context.Context, productIDs []int64) (int, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM daily_facts WHERE product_id = ANY($1)
	`, productIDs).Scan(&count)
	return count, err
}

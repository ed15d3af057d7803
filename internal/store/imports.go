package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/stocklens/api/internal/importer"
)

type Product struct {
	ID         int64
	Code       string
	Name       string
	UploadedBy int64
	CreatedAt  time.Time
}

type ImportBatch struct {
	ID        int64
	Filename  string
	UserID    int64
	CreatedAt time.Time
}

// ImportResult summarizes one completed import transaction.
type ImportResult struct {
	BatchID  int64
	Imported int
}

// RunImport persists one upload as a single unit of work: the batch row, any
// products not yet known, and an upsert per fact keyed by (product_id, date).
// Everything runs in one transaction, so a mid-batch failure leaves no
// orphaned batch behind.
func (s *Store) RunImport(ctx context.Context, userID int64, filename string, candidates []importer.Candidate, facts []importer.Fact) (ImportResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("begin import tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var batchID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO import_batches (filename, user_id)
		VALUES ($1, $2)
		RETURNING id
	`, filename, userID).Scan(&batchID); err != nil {
		return ImportResult{}, fmt.Errorf("create import batch: %w", err)
	}

	codeToID, err := resolveProducts(ctx, tx, userID, candidates)
	if err != nil {
		return ImportResult{}, err
	}

	imported := 0
	for _, f := range facts {
		productID, ok := codeToID[f.Code]
		if !ok {
			continue
		}
		if err := upsertDailyFact(ctx, tx, productID, batchID, f); err != nil {
			return ImportResult{}, fmt.Errorf("upsert fact %s/%s: %w", f.Code, f.Date.Format("2006-01-02"), err)
		}
		imported++
	}

	if err := tx.Commit(ctx); err != nil {
		return ImportResult{}, fmt.Errorf("commit import tx: %w", err)
	}

	return ImportResult{BatchID: batchID, Imported: imported}, nil
}

// resolveProducts maps every distinct candidate code to a product id,
// creating missing products owned by the importing user. When the file
// repeats a code, the last name wins for insertion. Creation races with
// concurrent imports are absorbed by ON CONFLICT DO NOTHING plus a re-fetch;
// a raw unique-violation error would poison the surrounding transaction.
func resolveProducts(ctx context.Context, tx pgx.Tx, userID int64, candidates []importer.Candidate) (map[string]int64, error) {
	nameByCode := make(map[string]string, len(candidates))
	codes := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, seen := nameByCode[c.Code]; !seen {
			codes = append(codes, c.Code)
		}
		nameByCode[c.Code] = c.Name
	}

	codeToID := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return codeToID, nil
	}

	rows, err := tx.Query(ctx, `SELECT id, product_code FROM products WHERE product_code = ANY($1)`, codes)
	if err != nil {
		return nil, fmt.Errorf("find products by code: %w", err)
	}
	for rows.Next() {
		var id int64
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan product: %w", err)
		}
		codeToID[code] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	for _, code := range codes {
		if _, ok := codeToID[code]; ok {
			continue
		}

		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO products (product_code, name, uploaded_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (product_code) DO NOTHING
			RETURNING id
		`, code, nameByCode[code], userID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the creation race; the product exists now.
			err = tx.QueryRow(ctx, `SELECT id FROM products WHERE product_code = $1`, code).Scan(&id)
		}
		if err != nil {
			return nil, fmt.Errorf("create product %s: %w", code, err)
		}
		codeToID[code] = id
	}

	return codeToID, nil
}

func upsertDailyFact(ctx context.Context, tx pgx.Tx, productID, batchID int64, f importer.Fact) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_facts (
			product_id, date, opening_inventory,
			procurement_qty, procurement_price, procurement_amount,
			sales_qty, sales_price, sales_amount,
			import_batch_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (product_id, date) DO UPDATE SET
			opening_inventory  = EXCLUDED.opening_inventory,
			procurement_qty    = EXCLUDED.procurement_qty,
			procurement_price  = EXCLUDED.procurement_price,
			procurement_amount = EXCLUDED.procurement_amount,
			sales_qty          = EXCLUDED.sales_qty,
			sales_price        = EXCLUDED.sales_price,
			sales_amount       = EXCLUDED.sales_amount,
			import_batch_id    = EXCLUDED.import_batch_id
	`, productID, f.Date, f.OpeningInventory,
		f.ProcurementQty, nullDecimal(f.ProcurementPrice), nullDecimal(f.ProcurementAmount),
		f.SalesQty, nullDecimal(f.SalesPrice), nullDecimal(f.SalesAmount),
		batchID)
	return err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (s *Store) ListImportBatchesByUser(ctx context.Context, userID int64) ([]ImportBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, user_id, created_at
		FROM import_batches
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list import batches: %w", err)
	}
	defer rows.Close()

	var batches []ImportBatch
	for rows.Next() {
		var b ImportBatch
		if err := rows.Scan(&b.ID, &b.Filename, &b.UserID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan import batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

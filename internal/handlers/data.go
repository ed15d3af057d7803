package handlers

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/stocklens/api/internal/httpx"
	"github.com/stocklens/api/internal/middleware"
)

type productPayload struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type dailyFactPayload struct {
	ProductID         int64   `json:"productId"`
	Date              string  `json:"date"`
	OpeningInventory  float64 `json:"openingInventory"`
	ProcurementQty    float64 `json:"procurementQty"`
	ProcurementPrice  *string `json:"procurementPrice"`
	ProcurementAmount *string `json:"procurementAmount"`
	SalesQty          float64 `json:"salesQty"`
	SalesPrice        *string `json:"salesPrice"`
	SalesAmount       *string `json:"salesAmount"`
}

// GetData returns the caller's products and their daily facts, optionally
// narrowed by one or more productId query parameters. Facts arrive ordered by
// date so chart consumers need no client-side sort.
func (s *Server) GetData(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}

	var filterIDs []int64
	for _, raw := range r.URL.Query()["productId"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_query", "productId must be a positive integer", nil)
			return
		}
		filterIDs = append(filterIDs, id)
	}

	products, err := s.Store.ListProductsByOwner(r.Context(), actor.UserID, filterIDs)
	if err != nil {
		s.Logger.Error("list products", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load data", nil)
		return
	}

	productPayloads := make([]productPayload, 0, len(products))
	productIDs := make([]int64, 0, len(products))
	for _, p := range products {
		productPayloads = append(productPayloads, productPayload{ID: p.ID, Code: p.Code, Name: p.Name})
		productIDs = append(productIDs, p.ID)
	}

	facts, err := s.Store.ListDailyFactsByProducts(r.Context(), productIDs)
	if err != nil {
		s.Logger.Error("list daily facts", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load data", nil)
		return
	}

	factPayloads := make([]dailyFactPayload, 0, len(facts))
	for _, f := range facts {
		factPayloads = append(factPayloads, dailyFactPayload{
			ProductID:         f.ProductID,
			Date:              f.Date.Format("2006-01-02"),
			OpeningInventory:  f.OpeningInventory,
			ProcurementQty:    f.ProcurementQty,
			ProcurementPrice:  decimalString(f.ProcurementPrice),
			ProcurementAmount: amountString(f.ProcurementAmount, f.ProcurementPrice, f.ProcurementQty),
			SalesQty:          f.SalesQty,
			SalesPrice:        decimalString(f.SalesPrice),
			SalesAmount:       amountString(f.SalesAmount, f.SalesPrice, f.SalesQty),
		})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"products": productPayloads,
		"data":     factPayloads,
	})
}

func decimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

// amountString backfills a missing stored amount from qty and price so rows
// imported before amounts were persisted still chart correctly.
func amountString(amount, price decimal.NullDecimal, qty float64) *string {
	if amount.Valid {
		s := amount.Decimal.StringFixed(2)
		return &s
	}
	if !price.Valid {
		return nil
	}
	s := price.Decimal.Mul(decimal.NewFromFloat(qty)).Round(2).StringFixed(2)
	return &s
}

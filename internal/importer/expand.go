package importer

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is a product identity extracted from one source row. The same
// code may appear on several rows; reconciliation collapses duplicates.
type Candidate struct {
	Code string
	Name string
}

// Fact is one per-product, per-day measurement derived from a source row.
// Price and amount fields are nil when the underlying value was not a finite
// number, which is distinct from a normalized zero.
type Fact struct {
	Code              string
	Date              time.Time
	OpeningInventory  float64
	ProcurementQty    float64
	ProcurementPrice  *decimal.Decimal
	ProcurementAmount *decimal.Decimal
	SalesQty          float64
	SalesPrice        *decimal.Decimal
	SalesAmount       *decimal.Decimal
}

type dayMeasures struct {
	procurementQty   string
	procurementPrice string
	salesQty         string
	salesPrice       string
}

// ExpandRow derives a product candidate and its ordered per-day facts from a
// single source row. The file carries no dates: the row's day columns are
// interpreted as the most recent maxDay calendar days ending at today, with
// day 1 mapping to the earliest. Days whose four measures are all zero emit
// no fact. Returns false when the row has no usable identity or no day
// columns; such rows are ignored, not errors.
func ExpandRow(row Row, today time.Time) (Candidate, []Fact, bool) {
	var codeRaw, nameRaw, openingRaw string
	days := map[int]*dayMeasures{}

	for label, value := range row {
		tag := ParseColumn(label)
		switch tag.Kind {
		case ColumnCode:
			codeRaw = value
		case ColumnName:
			nameRaw = value
		case ColumnOpeningInventory:
			openingRaw = value
		case ColumnProcurementQty, ColumnProcurementPrice, ColumnSalesQty, ColumnSalesPrice:
			if tag.Day <= 0 {
				continue
			}
			m := days[tag.Day]
			if m == nil {
				m = &dayMeasures{}
				days[tag.Day] = m
			}
			switch tag.Kind {
			case ColumnProcurementQty:
				m.procurementQty = value
			case ColumnProcurementPrice:
				m.procurementPrice = value
			case ColumnSalesQty:
				m.salesQty = value
			case ColumnSalesPrice:
				m.salesPrice = value
			}
		}
	}

	code := strings.TrimSpace(codeRaw)
	name := strings.TrimSpace(nameRaw)
	if code == "" || name == "" {
		return Candidate{}, nil, false
	}

	maxDay := DetectMaxDay(row)
	if maxDay == 0 {
		return Candidate{}, nil, false
	}

	// Day maxDay lands on today's calendar date; day 1 is maxDay-1 days back.
	// Dates are stored at UTC midnight of the local calendar day so the day
	// never shifts with the session time zone.
	end := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(maxDay - 1))

	inventory := ParseNumber(openingRaw)
	facts := make([]Fact, 0, maxDay)

	for d := 1; d <= maxDay; d++ {
		var m dayMeasures
		if found := days[d]; found != nil {
			m = *found
		}

		pQty := ParseNumber(m.procurementQty)
		pPrice := ParseMoney(m.procurementPrice)
		sQty := ParseNumber(m.salesQty)
		sPrice := ParseMoney(m.salesPrice)

		if pQty == 0 && pPrice == 0 && sQty == 0 && sPrice == 0 {
			continue
		}

		facts = append(facts, Fact{
			Code:              code,
			Date:              start.AddDate(0, 0, d-1),
			OpeningInventory:  inventory,
			ProcurementQty:    pQty,
			ProcurementPrice:  toDecimal(pPrice),
			ProcurementAmount: toDecimal(pQty * pPrice),
			SalesQty:          sQty,
			SalesPrice:        toDecimal(sPrice),
			SalesAmount:       toDecimal(sQty * sPrice),
		})

		inventory += pQty - sQty
	}

	return Candidate{Code: code, Name: name}, facts, true
}

// ExpandRows runs ExpandRow over every source row. Rows that fail identity or
// day detection are skipped silently. A candidate is registered even when its
// row emits zero facts.
func ExpandRows(rows []Row, today time.Time) ([]Candidate, []Fact) {
	candidates := make([]Candidate, 0, len(rows))
	facts := make([]Fact, 0, len(rows))

	for _, row := range rows {
		candidate, rowFacts, ok := ExpandRow(row, today)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
		facts = append(facts, rowFacts...)
	}

	return candidates, facts
}

// toDecimal rounds a monetary value to two decimal places for storage.
// Non-finite values map to nil, an explicit absence distinct from zero.
func toDecimal(v float64) *decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	d := decimal.NewFromFloat(v).Round(2)
	return &d
}

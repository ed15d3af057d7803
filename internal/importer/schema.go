package importer

import (
	"regexp"
	"strconv"
)

// Row is a single source row keyed by trimmed header label.
type Row map[string]string

// ColumnKind classifies a header label into the role it plays during
// extraction. Labels that match none of the known patterns are ColumnUnknown
// and contribute nothing beyond their possible "Day N" suffix.
type ColumnKind int

const (
	ColumnUnknown ColumnKind = iota
	ColumnCode
	ColumnName
	ColumnOpeningInventory
	ColumnProcurementQty
	ColumnProcurementPrice
	ColumnSalesQty
	ColumnSalesPrice
)

// ColumnTag is the typed result of parsing one header label. Day is zero for
// identity and opening-inventory columns.
type ColumnTag struct {
	Kind ColumnKind
	Day  int
}

var (
	dayPattern              = regexp.MustCompile(`(?i)day\s*(\d+)`)
	codePattern             = regexp.MustCompile(`(?i)^id$`)
	namePattern             = regexp.MustCompile(`(?i)^product\s*name$`)
	openingPattern          = regexp.MustCompile(`(?i)^opening\s*inventory$`)
	procurementQtyPattern   = regexp.MustCompile(`(?i)procurement\s*qty`)
	procurementPricePattern = regexp.MustCompile(`(?i)procurement\s*price`)
	salesQtyPattern         = regexp.MustCompile(`(?i)sales\s*qty`)
	salesPricePattern       = regexp.MustCompile(`(?i)sales\s*price`)
)

// ParseColumn turns a raw header label into a typed tag. The day index is
// read from a "Day N" fragment anywhere in the label, so both
// "Procurement Qty (Day 3)" and "Day 3 Procurement Qty" resolve to day 3.
func ParseColumn(label string) ColumnTag {
	tag := ColumnTag{Kind: ColumnUnknown}

	if m := dayPattern.FindStringSubmatch(label); m != nil {
		if day, err := strconv.Atoi(m[1]); err == nil {
			tag.Day = day
		}
	}

	switch {
	case codePattern.MatchString(label):
		tag.Kind = ColumnCode
	case namePattern.MatchString(label):
		tag.Kind = ColumnName
	case openingPattern.MatchString(label):
		tag.Kind = ColumnOpeningInventory
	case procurementQtyPattern.MatchString(label):
		tag.Kind = ColumnProcurementQty
	case procurementPricePattern.MatchString(label):
		tag.Kind = ColumnProcurementPrice
	case salesQtyPattern.MatchString(label):
		tag.Kind = ColumnSalesQty
	case salesPricePattern.MatchString(label):
		tag.Kind = ColumnSalesPrice
	}

	return tag
}

// DetectMaxDay returns the highest day index referenced by any of the row's
// labels, or 0 when no label carries a "Day N" fragment. A row yielding 0 has
// no daily data and is excluded from expansion.
func DetectMaxDay(row Row) int {
	max := 0
	for label := range row {
		if m := dayPattern.FindStringSubmatch(label); m != nil {
			if day, err := strconv.Atoi(m[1]); err == nil && day > max {
				max = day
			}
		}
	}
	return max
}

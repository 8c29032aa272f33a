package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimalList parses prices separated by commas, semicolons or spaces.
// Empty items are skipped.
//
//	"100, 90;80" -> [100 90 80]
func ParseDecimalList(raw string) ([]decimal.Decimal, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})

	values := make([]decimal.Decimal, 0, len(fields))
	for _, f := range fields {
		v, err := decimal.NewFromString(f)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", f, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// JoinDecimals is the inverse of ParseDecimalList.
func JoinDecimals(values []decimal.Decimal) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

package orders

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var leadingNumber = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)`)

// ParseAvailable splits a legacy "<numeric> <unit>" stock string. A string
// without a leading number counts as zero stock; whatever follows the number
// is the unit.
func ParseAvailable(s string) (decimal.Decimal, string) {
	m := leadingNumber.FindStringSubmatchIndex(s)
	if m == nil {
		return decimal.Zero, strings.TrimSpace(s)
	}
	qty, err := decimal.NewFromString(s[m[2]:m[3]])
	if err != nil {
		return decimal.Zero, strings.TrimSpace(s)
	}
	return qty, strings.TrimSpace(s[m[1]:])
}

// FormatAvailable renders stock as "<qty with two decimals> <unit>"
func FormatAvailable(qty decimal.Decimal, unit string) string {
	if unit == "" {
		return qty.StringFixed(2)
	}
	return qty.StringFixed(2) + " " + unit
}

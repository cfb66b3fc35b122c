package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit price into cents, rounding half away from zero.
func ToMinorUnits(price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		return 0, fmt.Errorf("%w: negative price %s", ErrValidation, price)
	}
	return price.Mul(hundred).Round(0).IntPart(), nil
}

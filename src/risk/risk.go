package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

var hundred = decimal.NewFromInt(100)

// Rule names the exchange rule an order failed.
type Rule string

const (
	RuleMinAmount   Rule = "min_amount"
	RuleMinQuantity Rule = "min_quantity"
	RuleMinPrice    Rule = "min_price"
)

// InsufficientError reports the first pair rule a quantity/price did not clear.
type InsufficientError struct {
	Symbol string
	Rule   Rule
	Value  decimal.Decimal
	Min    decimal.Decimal
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("%s: %s %s does not exceed %s", e.Symbol, e.Rule, e.Value.String(), e.Min.String())
}

// RoundStep truncates value down to a multiple of step. A non-positive step
// leaves value untouched.
func RoundStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// CapitalPerSignal is the share of the free balance given to one signal.
func CapitalPerSignal(freeBalance, percent decimal.Decimal) decimal.Decimal {
	if !freeBalance.IsPositive() || !percent.IsPositive() {
		return decimal.Zero
	}
	return freeBalance.Mul(percent).Div(hundred)
}

// PerEntryQuantity splits capital evenly over the entry points and converts
// the share into coins at price.
func PerEntryQuantity(capital decimal.Decimal, entries int, price, stepQuantity decimal.Decimal) decimal.Decimal {
	if entries <= 0 || !price.IsPositive() {
		return decimal.Zero
	}
	share := capital.Div(decimal.NewFromInt(int64(entries)))
	return RoundStep(share.Div(price), stepQuantity)
}

// PerExitQuantity splits the filled quantity evenly over the take-profits.
func PerExitQuantity(totalFilled decimal.Decimal, takeProfits int, stepQuantity decimal.Decimal) decimal.Decimal {
	if takeProfits <= 0 {
		return decimal.Zero
	}
	return RoundStep(totalFilled.Div(decimal.NewFromInt(int64(takeProfits))), stepQuantity)
}

// FeeAdjusted removes the market fee (a fraction, 0.001 for 0.1%) from value.
func FeeAdjusted(value, fee decimal.Decimal) decimal.Decimal {
	return value.Mul(decimal.NewFromInt(1).Sub(fee))
}

// ResidualQuantity is what is still held: the fee-adjusted bought quantity
// minus what was sold, quantized and never negative.
func ResidualQuantity(bought, sold, fee, stepQuantity decimal.Decimal) decimal.Decimal {
	rest := RoundStep(FeeAdjusted(bought, fee).Sub(sold), stepQuantity)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// CheckSufficiency verifies an order clears the pair minimums: the post-fee
// notional must exceed min_amount and the quantity must exceed min_quantity.
func CheckSufficiency(quantity, price, fee decimal.Decimal, pair *model.Pair) error {
	notional := FeeAdjusted(quantity.Mul(price), fee)
	if !notional.GreaterThan(pair.MinAmount) {
		return &InsufficientError{Symbol: pair.Symbol, Rule: RuleMinAmount, Value: notional, Min: pair.MinAmount}
	}
	if !quantity.GreaterThan(pair.MinQuantity) {
		return &InsufficientError{Symbol: pair.Symbol, Rule: RuleMinQuantity, Value: quantity, Min: pair.MinQuantity}
	}
	return nil
}

// QuantizePrice truncates price to the pair step and rejects prices under the
// pair minimum.
func QuantizePrice(price decimal.Decimal, pair *model.Pair) (decimal.Decimal, error) {
	q := RoundStep(price, pair.StepPrice)
	if q.LessThan(pair.MinPrice) {
		return decimal.Zero, &InsufficientError{Symbol: pair.Symbol, Rule: RuleMinPrice, Value: q, Min: pair.MinPrice}
	}
	return q, nil
}

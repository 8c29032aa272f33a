package tp_sl

import (
	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

// NextStopLoss derives the stop for the sell orders still open after the
// take-profit at filledIndex completed.
//
// Long:
// - index > 0: price of the take-profit one rung below
// - index 0: highest entry point
//
// takeProfits and entryPoints must be ordered ascending. ok is false when the
// index is outside the ladder or there are no entry points.
func NextStopLoss(filledIndex int, takeProfits, entryPoints []decimal.Decimal) (decimal.Decimal, bool) {
	if filledIndex < 0 || filledIndex >= len(takeProfits) {
		return decimal.Zero, false
	}
	if filledIndex > 0 {
		return takeProfits[filledIndex-1], true
	}
	if len(entryPoints) == 0 {
		return decimal.Zero, false
	}
	return decimal.Max(entryPoints[0], entryPoints[1:]...), true
}

// RaiseStopLoss moves the stop only in the protective direction: up for longs,
// down for shorts. A zero current stop always takes the candidate.
func RaiseStopLoss(position model.Position, current, candidate decimal.Decimal) (decimal.Decimal, bool) {
	if current.IsZero() {
		return candidate, !candidate.IsZero()
	}
	switch position {
	case model.PositionLong:
		if candidate.GreaterThan(current) {
			return candidate, true
		}
	case model.PositionShort:
		if candidate.LessThan(current) {
			return candidate, true
		}
	}
	return current, false
}

// HighestFilledIndex returns the highest index among filled take-profit
// orders. A take-profit canceled after a partial fill does not count.
func HighestFilledIndex(orders []model.Order) (int, bool) {
	best, found := -1, false
	for i := range orders {
		o := &orders[i]
		if o.Kind != model.OrderKindTakeProfit || !o.IsFilled() {
			continue
		}
		if o.Index > best {
			best, found = o.Index, true
		}
	}
	return best, found
}

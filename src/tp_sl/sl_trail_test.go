package tp_sl

import (
	"testing"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ds(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, d(v))
	}
	return out
}

func TestNextStopLoss_FirstTargetMovesToHighestEntry(t *testing.T) {
	sl, ok := NextStopLoss(0, ds("120", "130"), ds("80", "90", "100"))
	if !ok {
		t.Fatalf("expected stop to be derived")
	}
	if !sl.Equal(d("100")) {
		t.Fatalf("expected 100, got=%s", sl.String())
	}
}

func TestNextStopLoss_LaterTargetMovesToPreviousTarget(t *testing.T) {
	sl, ok := NextStopLoss(2, ds("120", "130", "140"), ds("80", "90", "100"))
	if !ok {
		t.Fatalf("expected stop to be derived")
	}
	if !sl.Equal(d("130")) {
		t.Fatalf("expected 130, got=%s", sl.String())
	}
}

func TestNextStopLoss_OutOfRange(t *testing.T) {
	if _, ok := NextStopLoss(2, ds("120", "130"), ds("100")); ok {
		t.Fatalf("expected no stop for index outside ladder")
	}
	if _, ok := NextStopLoss(-1, ds("120", "130"), ds("100")); ok {
		t.Fatalf("expected no stop for negative index")
	}
	if _, ok := NextStopLoss(0, ds("120"), nil); ok {
		t.Fatalf("expected no stop without entries")
	}
}

func TestRaiseStopLoss_LongOnlyMovesUp(t *testing.T) {
	sl, moved := RaiseStopLoss(model.PositionLong, d("70"), d("100"))
	if !moved || !sl.Equal(d("100")) {
		t.Fatalf("expected raise to 100, got=%s moved=%v", sl.String(), moved)
	}

	sl, moved = RaiseStopLoss(model.PositionLong, d("100"), d("90"))
	if moved || !sl.Equal(d("100")) {
		t.Fatalf("expected stop kept at 100, got=%s moved=%v", sl.String(), moved)
	}
}

func TestRaiseStopLoss_ShortOnlyMovesDown(t *testing.T) {
	sl, moved := RaiseStopLoss(model.PositionShort, d("130"), d("110"))
	if !moved || !sl.Equal(d("110")) {
		t.Fatalf("expected lower to 110, got=%s moved=%v", sl.String(), moved)
	}

	sl, moved = RaiseStopLoss(model.PositionShort, d("110"), d("120"))
	if moved || !sl.Equal(d("110")) {
		t.Fatalf("expected stop kept at 110, got=%s moved=%v", sl.String(), moved)
	}
}

func TestRaiseStopLoss_ZeroCurrentTakesCandidate(t *testing.T) {
	sl, moved := RaiseStopLoss(model.PositionLong, decimal.Zero, d("70"))
	if !moved || !sl.Equal(d("70")) {
		t.Fatalf("expected 70, got=%s", sl.String())
	}
}

func TestHighestFilledIndex(t *testing.T) {
	orders := []model.Order{
		{Kind: model.OrderKindTakeProfit, Index: 0, Status: model.OrderStatusCompleted},
		{Kind: model.OrderKindTakeProfit, Index: 1, Status: model.OrderStatusCanceled, Quantity: d("0.5"), ExecutedQuantity: d("0.5")},
		{Kind: model.OrderKindTakeProfit, Index: 2, Status: model.OrderStatusSent},
		{Kind: model.OrderKindStopLoss, Index: 3, Status: model.OrderStatusCompleted},
		{Kind: model.OrderKindTakeProfit, Index: 4, Status: model.OrderStatusCanceled, Quantity: d("5"), ExecutedQuantity: d("1")},
	}

	idx, ok := HighestFilledIndex(orders)
	if !ok || idx != 1 {
		t.Fatalf("expected index 1, got=%d ok=%v", idx, ok)
	}

	if _, ok := HighestFilledIndex(orders[2:3]); ok {
		t.Fatalf("expected no filled take-profit")
	}
}

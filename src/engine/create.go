package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/model"
	"signalexecutor/src/repository"
)

// NewSignal is the ingestion input of CreateSignal.
type NewSignal struct {
	SourceID    string            `json:"source_id"`
	Symbol      string            `json:"symbol"`
	StopLoss    decimal.Decimal   `json:"stop_loss"`
	EntryPoints []decimal.Decimal `json:"entry_points"`
	TakeProfits []decimal.Decimal `json:"take_profits"`
	Leverage    int               `json:"leverage"`
	MessageDate time.Time         `json:"message_date"`
}

// ClassifyPosition derives the side of a signal from its levels:
// long when every entry is under every target and the stop is under the
// entries, short for the mirror image.
func ClassifyPosition(entries, takeProfits []decimal.Decimal, stopLoss decimal.Decimal) (model.Position, error) {
	if len(entries) == 0 {
		return "", &ValidationError{Field: "entry_points", Reason: "at least one entry point is required"}
	}
	if len(takeProfits) == 0 {
		return "", &ValidationError{Field: "take_profits", Reason: "at least one take-profit is required"}
	}

	minEntry := decimal.Min(entries[0], entries[1:]...)
	maxEntry := decimal.Max(entries[0], entries[1:]...)
	minTP := decimal.Min(takeProfits[0], takeProfits[1:]...)
	maxTP := decimal.Max(takeProfits[0], takeProfits[1:]...)

	switch {
	case maxEntry.LessThan(minTP) && stopLoss.LessThan(minEntry):
		return model.PositionLong, nil
	case minEntry.GreaterThan(maxTP) && stopLoss.GreaterThan(maxEntry):
		return model.PositionShort, nil
	}
	return "", &ValidationError{Field: "levels", Reason: "entry points, take-profits and stop-loss are not ordered"}
}

func validateLevels(field string, values []decimal.Decimal) error {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if !v.IsPositive() {
			return &ValidationError{Field: field, Reason: "prices must be positive"}
		}
		key := v.String()
		if _, dup := seen[key]; dup {
			return &ValidationError{Field: field, Reason: "duplicate price " + key}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Validate checks a signal before it is stored and returns its position.
func (n *NewSignal) Validate() (model.Position, error) {
	if strings.TrimSpace(n.SourceID) == "" {
		return "", &ValidationError{Field: "source_id", Reason: "required"}
	}
	if strings.TrimSpace(n.Symbol) == "" {
		return "", &ValidationError{Field: "symbol", Reason: "required"}
	}
	if !n.StopLoss.IsPositive() {
		return "", &ValidationError{Field: "stop_loss", Reason: "must be positive"}
	}
	if n.Leverage < 0 {
		return "", &ValidationError{Field: "leverage", Reason: "must not be negative"}
	}
	if err := validateLevels("entry_points", n.EntryPoints); err != nil {
		return "", err
	}
	if err := validateLevels("take_profits", n.TakeProfits); err != nil {
		return "", err
	}
	return ClassifyPosition(n.EntryPoints, n.TakeProfits, n.StopLoss)
}

// CreateSignal validates and stores a signal in NEW. A source id can only be
// ingested once.
func (e *Engine) CreateSignal(ctx context.Context, in NewSignal) (*model.Signal, error) {
	position, err := in.Validate()
	if err != nil {
		return nil, err
	}

	signal := &model.Signal{
		SourceID:    strings.TrimSpace(in.SourceID),
		Symbol:      strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Market:      e.market.Name(),
		StopLoss:    in.StopLoss,
		Leverage:    in.Leverage,
		Position:    position,
		Status:      model.SignalStatusNew,
		Income:      decimal.Zero,
		Amount:      decimal.Zero,
		AllTargets:  true,
		MessageDate: in.MessageDate,
	}
	if signal.Leverage == 0 {
		signal.Leverage = 1
	}
	if signal.MessageDate.IsZero() {
		signal.MessageDate = e.now()
	}
	for _, v := range in.EntryPoints {
		signal.EntryPoints = append(signal.EntryPoints, model.EntryPoint{Value: v})
	}
	for _, v := range in.TakeProfits {
		signal.TakeProfits = append(signal.TakeProfits, model.TakeProfit{Value: v})
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		signals := repository.NewSignalRepositoryWithDB(tx)

		existing, err := signals.FindBySourceID(ctx, signal.SourceID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateSignal
		}

		if err := signals.Create(ctx, signal); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSignal
			}
			return err
		}

		return repository.NewHistoryRepositoryWithDB(tx).AppendSignal(ctx, &model.SignalHistory{
			SignalID:  signal.ID,
			ToStatus:  model.SignalStatusNew,
			Reason:    "created",
			CreatedAt: e.now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create signal %s: %w", in.SourceID, err)
	}

	logrus.WithFields(logrus.Fields{
		"signal_id": signal.ID,
		"source_id": signal.SourceID,
		"symbol":    signal.Symbol,
		"position":  signal.Position,
	}).Info("Signal created")

	return signal, nil
}

package engine

import (
	"github.com/sirupsen/logrus"

	"signalexecutor/src/model"
)

var transitions = map[model.SignalStatus][]model.SignalStatus{
	model.SignalStatusNew:       {model.SignalStatusFormed, model.SignalStatusError},
	model.SignalStatusFormed:    {model.SignalStatusPushed, model.SignalStatusCanceling, model.SignalStatusClosed},
	model.SignalStatusPushed:    {model.SignalStatusBought, model.SignalStatusCanceling, model.SignalStatusClosed},
	model.SignalStatusBought:    {model.SignalStatusBought, model.SignalStatusSold, model.SignalStatusCanceling, model.SignalStatusClosed},
	model.SignalStatusSold:      {model.SignalStatusBought, model.SignalStatusSold, model.SignalStatusCanceling, model.SignalStatusClosed},
	model.SignalStatusCanceling: {model.SignalStatusClosed},
}

// CanTransition reports whether a signal may move from one status to another.
func CanTransition(from, to model.SignalStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition describes one committed status change.
type Transition struct {
	SignalID uint
	From     model.SignalStatus
	To       model.SignalStatus
	Reason   string
}

// Observer is notified after the transaction holding a transition committed.
type Observer func(Transition)

func logTransition(t Transition) {
	logrus.WithFields(logrus.Fields{
		"signal_id": t.SignalID,
		"from":      t.From,
		"to":        t.To,
		"reason":    t.Reason,
	}).Info("Signal status changed")
}

// transition validates and persists a status change and appends it to the
// signal history. Observers run once the unit of work commits.
func (e *Engine) transition(uow *unitOfWork, to model.SignalStatus, reason string) error {
	signal := uow.signal
	from := signal.Status
	if !CanTransition(from, to) {
		return &TransitionError{SignalID: signal.ID, From: from, To: to}
	}

	signal.Status = to
	signal.UpdatedAt = e.now()
	if err := uow.signals.UpdateState(uow.ctx, signal); err != nil {
		return err
	}

	if err := uow.history.AppendSignal(uow.ctx, &model.SignalHistory{
		SignalID:   signal.ID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		CreatedAt:  e.now(),
	}); err != nil {
		return err
	}

	uow.transitions = append(uow.transitions, Transition{SignalID: signal.ID, From: from, To: to, Reason: reason})
	return nil
}

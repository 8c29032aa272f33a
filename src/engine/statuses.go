package engine

import "signalexecutor/src/model"

// Status sets each operation acts on. Outside its set an operation is a no-op.
var (
	FormStatuses = []model.SignalStatus{model.SignalStatusNew}
	PushStatuses = []model.SignalStatus{
		model.SignalStatusFormed, model.SignalStatusPushed, model.SignalStatusBought,
		model.SignalStatusSold, model.SignalStatusCanceling,
	}
	PollStatuses = []model.SignalStatus{
		model.SignalStatusPushed, model.SignalStatusBought,
		model.SignalStatusSold, model.SignalStatusCanceling,
	}
	BoughtStatuses = []model.SignalStatus{model.SignalStatusPushed, model.SignalStatusBought, model.SignalStatusSold}
	SoldStatuses   = []model.SignalStatus{model.SignalStatusBought, model.SignalStatusSold}
	SpoilStatuses  = []model.SignalStatus{model.SignalStatusFormed, model.SignalStatusPushed, model.SignalStatusCanceling}
	// ForcedSpoilStatuses widens SpoilStatuses for operator requests.
	ForcedSpoilStatuses = []model.SignalStatus{
		model.SignalStatusFormed, model.SignalStatusPushed,
		model.SignalStatusBought, model.SignalStatusSold,
	}
	CloseStatuses = []model.SignalStatus{
		model.SignalStatusFormed, model.SignalStatusPushed, model.SignalStatusBought,
		model.SignalStatusSold, model.SignalStatusCanceling,
	}
)

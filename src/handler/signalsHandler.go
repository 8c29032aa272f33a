package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/engine"
	"signalexecutor/src/executors"
	"signalexecutor/src/model"
)

type signalCreator interface {
	CreateSignal(ctx context.Context, in engine.NewSignal) (*model.Signal, error)
}

type signalReader interface {
	FindByID(ctx context.Context, id uint) (*model.Signal, error)
}

type operator interface {
	ForceSpoil(ctx context.Context, ids []uint) []executors.Result
	ForceClose(ctx context.Context, ids []uint) []executors.Result
}

// CreateSignalHandler ingests one signal. Invalid levels answer 400 and an
// already ingested source id 409.
func CreateSignalHandler(creator signalCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload engine.NewSignal
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid signal payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		signal, err := creator.CreateSignal(r.Context(), payload)
		var verr *engine.ValidationError
		switch {
		case err == nil:
			writeJSON(w, http.StatusCreated, signal)
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, engine.ErrDuplicateSignal):
			writeError(w, http.StatusConflict, "signal already ingested")
		default:
			logger.WithError(err).Error("failed to create signal")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
	}
}

// GetSignalHandler returns a signal with its levels.
func GetSignalHandler(repo signalReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid signal id")
			return
		}

		signal, err := repo.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to fetch signal")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if signal == nil {
			writeError(w, http.StatusNotFound, "signal not found")
			return
		}

		writeJSON(w, http.StatusOK, signal)
	}
}

type operatorRequest struct {
	SignalIDs []uint `json:"signal_ids"`
}

// ForceSpoilHandler and ForceCloseHandler apply an operator action to a list
// of signals and answer with one result per signal.
func ForceSpoilHandler(op operator) http.HandlerFunc {
	return operatorHandler(op.ForceSpoil)
}

func ForceCloseHandler(op operator) http.HandlerFunc {
	return operatorHandler(op.ForceClose)
}

func operatorHandler(action func(context.Context, []uint) []executors.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload operatorRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.SignalIDs) == 0 {
			writeError(w, http.StatusBadRequest, "signal_ids required")
			return
		}

		writeJSON(w, http.StatusOK, action(r.Context(), payload.SignalIDs))
	}
}

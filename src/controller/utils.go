package controller

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/model"
	"signalexecutor/src/repository"
)

const (
	LevelWarn  = "warn"
	LevelError = "error"
)

// Capture records an operation failure, logs it locally and, when repo is
// set, persists it in the exceptions table. signalID may be nil for failures
// not bound to one signal.
func Capture(
	ctx context.Context,
	repo *repository.ExceptionRepository,
	service string,
	module string,
	method string,
	level string,
	signalID *uint,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		SignalID:  signalID,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}

	entry := logger.WithFields(map[string]interface{}{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err)
	if signalID != nil {
		entry = entry.WithField("signal_id", *signalID)
	}
	if level == LevelWarn {
		entry.Warn("Operation failed")
	} else {
		entry.Error("System exception captured")
	}

	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/model"
	"signalexecutor/src/repository"
)

type orderLister interface {
	ForSignal(ctx context.Context, signalID uint, filter repository.OrderFilter) ([]model.Order, error)
}

type historyLister interface {
	ListForOrder(ctx context.Context, orderID uint) ([]model.OrderHistory, error)
}

func pathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// SignalOrdersHandler lists the orders of a signal.
// Supports filters (side, kind, status, localCanceled); kind and status accept
// comma separated values.
func SignalOrdersHandler(repo orderLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signalID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid signal id")
			return
		}

		var filter repository.OrderFilter
		query := r.URL.Query()

		switch side := model.OrderSide(query.Get("side")); side {
		case "":
		case model.OrderSideBuy, model.OrderSideSell:
			filter.Side = side
		default:
			writeError(w, http.StatusBadRequest, "invalid side")
			return
		}

		if kinds := query.Get("kind"); kinds != "" {
			for _, k := range strings.Split(kinds, ",") {
				filter.Kinds = append(filter.Kinds, model.OrderKind(strings.TrimSpace(k)))
			}
		}
		if statuses := query.Get("status"); statuses != "" {
			for _, s := range strings.Split(statuses, ",") {
				filter.Statuses = append(filter.Statuses, model.OrderStatus(strings.ToUpper(strings.TrimSpace(s))))
			}
		}
		if lc := query.Get("localCanceled"); lc != "" {
			parsed, err := strconv.ParseBool(lc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid localCanceled")
				return
			}
			filter.LocalCanceled = &parsed
		}

		orders, err := repo.ForSignal(r.Context(), signalID, filter)
		if err != nil {
			logger.WithError(err).Error("failed to list signal orders")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, orders)
	}
}

// OrderHistoryHandler returns the status history of one order, oldest first.
func OrderHistoryHandler(repo historyLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		rows, err := repo.ListForOrder(r.Context(), orderID)
		if err != nil {
			logger.WithError(err).Error("failed to list order history")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, rows)
	}
}

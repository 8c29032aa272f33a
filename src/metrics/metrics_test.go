package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveWorker(t *testing.T) {
	runs := value(t, WorkerRuns.WithLabelValues("push"))
	failures := value(t, WorkerFailures.WithLabelValues("push"))

	ObserveWorker("push", time.Now(), 0)
	ObserveWorker("push", time.Now(), 2)

	require.Equal(t, runs+2, value(t, WorkerRuns.WithLabelValues("push")))
	require.Equal(t, failures+2, value(t, WorkerFailures.WithLabelValues("push")))
}

func TestObserveExchange(t *testing.T) {
	ObserveExchange("paper", "OrderInfo", nil)
	ObserveExchange("paper", "OrderInfo", errors.New("boom"))
	ObserveExchange("paper", "OrderInfo", nil)

	require.Equal(t, float64(2), value(t, ExchangeCalls.WithLabelValues("paper", "OrderInfo", "ok")))
	require.Equal(t, float64(1), value(t, ExchangeCalls.WithLabelValues("paper", "OrderInfo", "error")))
}

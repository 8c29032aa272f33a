package executors

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"signalexecutor/src/controller"
	"signalexecutor/src/engine"
	"signalexecutor/src/metrics"
	"signalexecutor/src/model"
	"signalexecutor/src/repository"
)

const serviceName = "fleet"

type Worker string

const (
	WorkerForm   Worker = "form"
	WorkerPush   Worker = "push"
	WorkerPull   Worker = "pull"
	WorkerBought Worker = "bought"
	WorkerSold   Worker = "sold"
	WorkerSpoil  Worker = "spoil"
	WorkerClose  Worker = "close"
)

var Workers = []Worker{WorkerForm, WorkerPush, WorkerPull, WorkerBought, WorkerSold, WorkerSpoil, WorkerClose}

func ParseWorker(name string) (Worker, error) {
	for _, w := range Workers {
		if string(w) == name {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown worker %q", name)
}

type job struct {
	method   string
	statuses []model.SignalStatus
	apply    func(ctx context.Context, e *engine.Engine, signalID uint) error
}

var jobs = map[Worker]job{
	WorkerForm: {"FormOrders", engine.FormStatuses, func(ctx context.Context, e *engine.Engine, id uint) error {
		return e.FormOrders(ctx, id)
	}},
	WorkerPush: {"PushOrders", engine.PushStatuses, func(ctx context.Context, e *engine.Engine, id uint) error {
		return e.PushOrders(ctx, id)
	}},
	WorkerPull: {"PollFills", engine.PollStatuses, func(ctx context.Context, e *engine.Engine, id uint) error {
		return e.PollFills(ctx, id)
	}},
	WorkerBought: {"HandleBoughtOrders", engine.BoughtStatuses, func(ctx context.Context, e *engine.Engine, id uint) error {
		return e.HandleBoughtOrders(ctx, id)
	}},
	WorkerSold: {"HandleSoldOrders", engine.SoldStatuses, func(ctx context.Context, e *engine.Engine, id uint) error {
		return e.HandleSoldOrders(ctx, id)
	}},
	WorkerSpoil: {"TrySpoil", engine.SpoilStatuses, func(ctx context.Context, e *engine.Engine, id uint) error {
		return e.TrySpoil(ctx, id, false)
	}},
	WorkerClose: {"TryClose", engine.CloseStatuses, func(ctx context.Context, e *engine.Engine, id uint) error {
		return e.TryClose(ctx, id)
	}},
}

// Fleet applies engine operations to every signal in a worker's status set.
type Fleet struct {
	engine      *engine.Engine
	signals     *repository.SignalRepository
	exceptions  *repository.ExceptionRepository
	concurrency int
}

func NewFleet(e *engine.Engine, db *gorm.DB, concurrency int) *Fleet {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fleet{
		engine:      e,
		signals:     repository.NewSignalRepositoryWithDB(db),
		exceptions:  repository.NewExceptionRepositoryWithDB(db),
		concurrency: concurrency,
	}
}

// WithSettings returns a fleet whose engine runs with s.
func (f *Fleet) WithSettings(s engine.Settings) *Fleet {
	c := *f
	c.engine = f.engine.WithSettings(s)
	return &c
}

func (f *Fleet) Engine() *engine.Engine { return f.engine }

// Run performs one pass of worker over the selected signals. Signals are
// processed in parallel up to the fleet concurrency. Failures are logged,
// counted and persisted, never returned.
func (f *Fleet) Run(ctx context.Context, worker Worker, filter repository.SignalFilter) {
	log := logrus.WithFields(logrus.Fields{
		"worker": worker,
		"run_id": uuid.NewString(),
	})
	started := time.Now()

	j, ok := jobs[worker]
	if !ok {
		log.Error("Unknown worker")
		return
	}

	ids, err := f.signals.ListIDsByStatus(ctx, j.statuses, filter)
	if err != nil {
		controller.Capture(ctx, f.exceptions, serviceName, string(worker), "ListIDsByStatus", controller.LevelError, nil, err, nil)
		metrics.ObserveWorker(string(worker), started, 1)
		return
	}

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := j.apply(ctx, f.engine, id); err != nil {
				failed.Add(1)
				f.capture(ctx, worker, j.method, id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.ObserveWorker(string(worker), started, int(failed.Load()))
	log.WithFields(logrus.Fields{
		"signals":  len(ids),
		"failed":   failed.Load(),
		"duration": time.Since(started).String(),
	}).Debug("Worker pass finished")
}

func (f *Fleet) capture(ctx context.Context, worker Worker, method string, signalID uint, err error) {
	level := controller.LevelError
	if engine.IsInsufficientCapital(err) {
		level = controller.LevelWarn
	}
	controller.Capture(ctx, f.exceptions, serviceName, string(worker), method, level, &signalID, err, nil)
}

// Result is the outcome of an operator action on one signal.
type Result struct {
	SignalID uint   `json:"signal_id"`
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// ForceSpoil abandons every given signal regardless of price.
func (f *Fleet) ForceSpoil(ctx context.Context, ids []uint) []Result {
	return f.each(ctx, "ForceSpoil", ids, func(ctx context.Context, id uint) error {
		return f.engine.TrySpoil(ctx, id, true)
	})
}

// ForceClose closes every given signal that has no open order.
func (f *Fleet) ForceClose(ctx context.Context, ids []uint) []Result {
	return f.each(ctx, "ForceClose", ids, f.engine.ForceClose)
}

func (f *Fleet) each(ctx context.Context, method string, ids []uint, fn func(context.Context, uint) error) []Result {
	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = Result{SignalID: id}
			if err := fn(ctx, id); err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				logrus.WithFields(logrus.Fields{
					"method":    method,
					"signal_id": id,
				}).WithError(err).Warn("Operator action failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CountTransition feeds committed transitions into the transitions counter.
func CountTransition(t engine.Transition) {
	metrics.SignalTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
}

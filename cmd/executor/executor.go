package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"signalexecutor/src/executors"
	"signalexecutor/src/repository"
)

type Executor struct{}

// Start runs every worker until SIGINT or SIGTERM.
func (t *Executor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	rt, err := Bootstrap()
	if err != nil {
		logrus.WithError(err).Error("Failed to bootstrap")
		return err
	}

	logrus.WithField("market", rt.Market.Name()).Info("Starting signal executor")

	if err := executors.StartLoop(ctx, rt.Fleet, rt.DB, rt.Pairs); err != nil {
		logrus.WithError(err).Error("Failed to start worker loop")
		return err
	}

	return nil
}

// RunOnce performs a single pass of one worker, for an external scheduler.
func (t *Executor) RunOnce(worker executors.Worker, filter repository.SignalFilter) error {
	rt, err := Bootstrap()
	if err != nil {
		return err
	}
	rt.Fleet.Run(context.Background(), worker, filter)
	return nil
}

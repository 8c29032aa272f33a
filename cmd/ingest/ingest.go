package ingest

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"signalexecutor/cmd/executor"
	"signalexecutor/src/database"
	srcingest "signalexecutor/src/ingest"
)

type Ingest struct {
	// Once polls a single batch and exits.
	Once bool
}

func (i *Ingest) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := executor.Bootstrap()
	if err != nil {
		return err
	}
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to read-only database")
		return err
	}

	config := srcingest.GetConfig()
	poller := srcingest.NewPoller(rt.Engine, database.ReadOnlyDB, rt.DB, config.Batch)

	if i.Once {
		stats, err := poller.Poll(ctx)
		logrus.WithFields(logrus.Fields{
			"created": stats.Created,
			"skipped": stats.Skipped,
			"last_id": stats.LastID,
		}).Info("Ingestion pass done")
		return err
	}

	logrus.WithField("period", config.Period.String()).Info("Starting ingestion poller")
	return poller.Run(ctx, config.Period)
}

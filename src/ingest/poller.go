// Package ingest turns rows of the external parsed_signals table into
// signals. A cursor in the main database remembers the last row read.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/engine"
	"signalexecutor/src/externalmodel"
	"signalexecutor/src/repository"
	"signalexecutor/src/utils"
)

const cursorName = "parsed_signals"

type Stats struct {
	Read    int
	Created int
	Skipped int
	LastID  uint
}

type Poller struct {
	engine  *engine.Engine
	source  *repository.ParsedSignalRepository
	cursors *repository.IngestCursorRepository
	batch   int
}

// NewPoller reads parsed signals from source and stores cursors in main.
func NewPoller(e *engine.Engine, source, main *gorm.DB, batch int) *Poller {
	return &Poller{
		engine:  e,
		source:  repository.NewParsedSignalRepository().WithDB(source),
		cursors: repository.NewIngestCursorRepositoryWithDB(main),
		batch:   batch,
	}
}

// Poll ingests one batch. Rows that fail validation or were ingested before
// are skipped and the cursor moves past them. Any other failure stops the
// batch with the cursor on the last row handled.
func (p *Poller) Poll(ctx context.Context) (Stats, error) {
	lastID, err := p.cursors.Get(ctx, cursorName)
	if err != nil {
		return Stats{}, fmt.Errorf("read cursor: %w", err)
	}
	stats := Stats{LastID: lastID}

	rows, err := p.source.FindAfterID(ctx, lastID, p.batch)
	if err != nil {
		return stats, fmt.Errorf("read parsed signals: %w", err)
	}

	var pollErr error
	for i := range rows {
		row := &rows[i]
		stats.Read++

		if err := p.ingest(ctx, row); err != nil {
			if !skippable(err) {
				pollErr = err
				break
			}
			stats.Skipped++
			logger.WithFields(map[string]interface{}{
				"parsed_signal_id": row.ID,
				"source_id":        row.SourceID,
			}).WithError(err).Warn("Parsed signal skipped")
		} else {
			stats.Created++
		}
		stats.LastID = row.ID
	}

	if stats.LastID != lastID {
		if err := p.cursors.Save(ctx, cursorName, stats.LastID); err != nil {
			return stats, fmt.Errorf("save cursor: %w", err)
		}
	}

	if stats.Read > 0 {
		logger.WithFields(map[string]interface{}{
			"read":    stats.Read,
			"created": stats.Created,
			"skipped": stats.Skipped,
			"last_id": stats.LastID,
		}).Info("Parsed signals ingested")
	}
	return stats, pollErr
}

func (p *Poller) ingest(ctx context.Context, row *externalmodel.ParsedSignal) error {
	in, err := toNewSignal(row)
	if err != nil {
		return err
	}
	_, err = p.engine.CreateSignal(ctx, in)
	return err
}

func skippable(err error) bool {
	var verr *engine.ValidationError
	return errors.As(err, &verr) || errors.Is(err, engine.ErrDuplicateSignal)
}

func toNewSignal(row *externalmodel.ParsedSignal) (engine.NewSignal, error) {
	entries, err := utils.ParseDecimalList(row.EntryPoints)
	if err != nil {
		return engine.NewSignal{}, &engine.ValidationError{Field: "entry_points", Reason: err.Error()}
	}
	targets, err := utils.ParseDecimalList(row.TakeProfits)
	if err != nil {
		return engine.NewSignal{}, &engine.ValidationError{Field: "take_profits", Reason: err.Error()}
	}

	in := engine.NewSignal{
		SourceID:    row.SourceID,
		Symbol:      row.Symbol,
		StopLoss:    row.StopLoss,
		EntryPoints: entries,
		TakeProfits: targets,
		Leverage:    row.Leverage,
	}
	if in.SourceID == "" {
		in.SourceID = fmt.Sprintf("parsed-%d", row.ID)
	}
	if row.MessageDate != nil {
		in.MessageDate = *row.MessageDate
	}
	return in, nil
}

// Run polls every period until ctx is done.
func (p *Poller) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil {
			logger.WithError(err).Error("Ingestion pass failed")
		}

		select {
		case <-ctx.Done():
			logger.Println("ingest stopped")
			return nil
		case <-ticker.C:
		}
	}
}

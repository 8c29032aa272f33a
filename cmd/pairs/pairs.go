package pairs

import (
	"context"

	"github.com/sirupsen/logrus"

	"signalexecutor/cmd/executor"
	srcpairs "signalexecutor/src/pairs"
	"signalexecutor/src/repository"
)

// Refresh stores the trading rules of the given symbols, or of every symbol
// used by an open signal when none are given.
type Refresh struct {
	Symbols []string
}

func (p *Refresh) Start() error {
	ctx := context.Background()

	rt, err := executor.Bootstrap()
	if err != nil {
		return err
	}

	symbols := p.Symbols
	if len(symbols) == 0 {
		if symbols, err = repository.NewSignalRepositoryWithDB(rt.DB).SymbolsInUse(ctx); err != nil {
			return err
		}
	}

	stored, err := srcpairs.Refresh(ctx, rt.DB, rt.Market, symbols)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"market":  rt.Market.Name(),
		"symbols": len(symbols),
		"stored":  stored,
	}).Info("Pair rules refreshed")
	return nil
}

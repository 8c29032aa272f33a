package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"signalexecutor/cmd/executor"
	"signalexecutor/cmd/ingest"
	"signalexecutor/cmd/keys"
	"signalexecutor/cmd/pairs"
	"signalexecutor/src/database"
	"signalexecutor/src/engine"
	"signalexecutor/src/executors"
	"signalexecutor/src/repository"
	"signalexecutor/src/utils"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signal executor CMD"
	app.Usage = "Drives trading signals through their order lifecycle"
	app.Version = Version

	app.Before = func(_ *cli.Context) error {
		config := database.GetConfig()
		utils.SetupLogger(config.LogLevel, config.LogFormat)
		return nil
	}

	app.Commands = []cli.Command{
		workersCMD,
		runCMD,
		ingestCMD,
		pairsCMD,
		signalCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	workersCMD = cli.Command{
		Name:        "workers",
		Usage:       "run every worker on its period",
		Action:      workersAction,
		Description: `Run the form, push, pull, bought, sold, spoil and close workers until interrupted`,
	}
	runCMD = cli.Command{
		Name:      "run",
		Usage:     "run a single worker pass",
		Action:    runAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "worker", Usage: "one of form, push, pull, bought, sold, spoil, close"},
			cli.UintFlag{Name: "signal", Usage: "restrict the pass to one signal id"},
			cli.StringFlag{Name: "source", Usage: "restrict the pass to one source id"},
		},
		Description: `Run one worker pass, for an external scheduler`,
	}
	ingestCMD = cli.Command{
		Name:   "ingest",
		Usage:  "poll parsed signals",
		Action: ingestAction,
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "once", Usage: "poll a single batch and exit"},
		},
		Description: `Create signals from new rows of the read-only parsed_signals table`,
	}
	pairsCMD = cli.Command{
		Name:        "pairs",
		Usage:       "refresh pair trading rules",
		Action:      pairsAction,
		ArgsUsage:   "[SYMBOL...]",
		Description: `Fetch and store the trading rules of the given symbols, or of every symbol in use`,
	}
	signalCMD = cli.Command{
		Name:  "signal",
		Usage: "signal operations",
		Subcommands: []cli.Command{
			{
				Name:   "create",
				Usage:  "create a signal",
				Action: createSignalAction,
				Flags: []cli.Flag{
					cli.StringFlag{Name: "source", Usage: "source id, unique per signal"},
					cli.StringFlag{Name: "symbol", Usage: "market symbol, e.g. BTCUSDT"},
					cli.StringFlag{Name: "entries", Usage: "entry prices, comma separated"},
					cli.StringFlag{Name: "targets", Usage: "take-profit prices, comma separated"},
					cli.StringFlag{Name: "stop", Usage: "stop-loss price"},
					cli.IntFlag{Name: "leverage", Value: 1},
				},
			},
			{
				Name:      "spoil",
				Usage:     "force spoil signals",
				ArgsUsage: "ID...",
				Action:    operatorAction(func(f *executors.Fleet) func(context.Context, []uint) []executors.Result { return f.ForceSpoil }),
			},
			{
				Name:      "close",
				Usage:     "force close signals",
				ArgsUsage: "ID...",
				Action:    operatorAction(func(f *executors.Fleet) func(context.Context, []uint) []executors.Result { return f.ForceClose }),
			},
		},
	}
	keysCMD = cli.Command{
		Name:  "keys",
		Usage: "exchange credential helpers",
		Subcommands: []cli.Command{
			{
				Name:      "encrypt",
				Usage:     "encrypt an exchange key or secret with EXCHANGE_CREDENTIALS_KEY",
				ArgsUsage: "[VALUE]",
				Action: func(c *cli.Context) error {
					return keys.Encrypt(c.Args().First(), os.Stdin, os.Stdout)
				},
			},
		},
	}
)

func workersAction(_ *cli.Context) error {
	logrus.Info("Starting workers CMD")

	e := &executor.Executor{}
	if err := e.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func runAction(c *cli.Context) error {
	worker, err := executors.ParseWorker(c.String("worker"))
	if err != nil {
		return err
	}

	e := &executor.Executor{}
	return e.RunOnce(worker, repository.SignalFilter{
		SignalID: c.Uint("signal"),
		SourceID: c.String("source"),
	})
}

func ingestAction(c *cli.Context) error {
	logrus.Info("Starting ingest CMD")

	i := &ingest.Ingest{Once: c.Bool("once")}
	if err := i.Start(); err != nil {
		logrus.WithError(err).Error("Starting ingest cmd")
		return err
	}
	return nil
}

func pairsAction(c *cli.Context) error {
	p := &pairs.Refresh{Symbols: c.Args()}
	return p.Start()
}

func createSignalAction(c *cli.Context) error {
	entries, err := utils.ParseDecimalList(c.String("entries"))
	if err != nil {
		return err
	}
	targets, err := utils.ParseDecimalList(c.String("targets"))
	if err != nil {
		return err
	}
	stop, err := decimal.NewFromString(strings.TrimSpace(c.String("stop")))
	if err != nil {
		return fmt.Errorf("invalid stop %q: %w", c.String("stop"), err)
	}

	rt, err := executor.Bootstrap()
	if err != nil {
		return err
	}

	signal, err := rt.Engine.CreateSignal(context.Background(), engine.NewSignal{
		SourceID:    c.String("source"),
		Symbol:      c.String("symbol"),
		StopLoss:    stop,
		EntryPoints: entries,
		TakeProfits: targets,
		Leverage:    c.Int("leverage"),
	})
	if err != nil {
		return err
	}
	return printJSON(signal)
}

func operatorAction(pick func(*executors.Fleet) func(context.Context, []uint) []executors.Result) func(*cli.Context) error {
	return func(c *cli.Context) error {
		ids, err := parseIDs(c.Args())
		if err != nil {
			return err
		}

		rt, err := executor.Bootstrap()
		if err != nil {
			return err
		}
		return printJSON(pick(rt.Fleet)(context.Background(), ids))
	}
}

func parseIDs(args []string) ([]uint, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one signal id is required")
	}
	ids := make([]uint, 0, len(args))
	for _, a := range args {
		var id uint
		if _, err := fmt.Sscan(a, &id); err != nil || id == 0 {
			return nil, fmt.Errorf("invalid signal id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

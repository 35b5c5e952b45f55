package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradepilot/cmd/candles"
	"tradepilot/cmd/engine"
	"tradepilot/cmd/keys"
	"tradepilot/src/database"
	"tradepilot/src/repository"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Tradepilot CMD"
	app.Usage = "The Tradepilot command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		candlesCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run a single trading engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run one trading engine headless, without the HTTP control API`,
	}
	candlesCMD = cli.Command{
		Name:        "candles",
		Usage:       "backfill OHLCV candles",
		Action:      candlesAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill historical OHLCV candles from Binance`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "register an engine with encrypted credentials",
		Action:      keysAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Encrypt exchange credentials and create an engine row`,
	}
)

func engineAction(_ *cli.Context) error {

	logrus.Info("Starting engine CMD")

	if err := engine.Run(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func candlesAction(_ *cli.Context) error {

	logrus.Info("Starting candles CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	backfill := &candles.Backfill{
		Log:  logrus.WithField("cmd", "candles"),
		Repo: repository.NewCandleRepository(),
	}

	if err := backfill.Start(context.Background()); err != nil {
		logrus.WithError(err).Error("Starting candles cmd")
		return err
	}

	return nil
}

func keysAction(_ *cli.Context) error {

	logrus.Info("Starting keys CMD")

	if err := keys.Run(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

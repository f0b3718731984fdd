package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradesync/src/database"
	"tradesync/src/repository"
	"tradesync/src/syncer"
	"tradesync/src/utils"
	"tradesync/src/volatility"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Tradesync CMD"
	app.Usage = "The tradesync maintenance command line interface"

	app.Commands = []cli.Command{
		backfillCMD,
		calcVolCMD,
		resyncCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	backfillCMD = cli.Command{
		Name:      "backfill",
		Usage:     "copy missing volatility pairs from an earlier time point",
		Action:    backfillAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "dataTime", Usage: "incomplete time point (2006-01-02 15:04:05)"},
			cli.StringFlag{Name: "prevTime", Usage: "complete time point to copy from"},
		},
		Description: `Fill the gaps of an incomplete collection minute from an earlier complete one`,
	}
	calcVolCMD = cli.Command{
		Name:      "calcvol",
		Usage:     "recalculate the per-currency volatility indices for one time point",
		Action:    calcVolAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "dataTime", Usage: "time point to calculate (2006-01-02 15:04:05)"},
		},
		Description: `Reduce the stored pair samples of a time point to currency indices`,
	}
	resyncCMD = cli.Command{
		Name:      "resync",
		Usage:     "rebuild group aggregates and configs for one account from stored positions",
		Action:    resyncAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.UintFlag{Name: "account", Usage: "account login to rebuild"},
		},
		Description: `Replay the stored open positions through the sync pipeline`,
	}
)

func backfillAction(c *cli.Context) error {

	logrus.Info("Starting volatility backfill CMD")

	dataTime, err := utils.ParseDataTime(c.String("dataTime"))
	if err != nil {
		return err
	}
	prevTime, err := utils.ParseDataTime(c.String("prevTime"))
	if err != nil {
		return err
	}

	if err := database.InitVolatilityDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	filled, err := repository.NewVolatilityRepository().
		BackfillVolatility(context.Background(), dataTime, prevTime)
	if err != nil {
		logrus.WithError(err).Error("Backfill failed")
		return err
	}

	logrus.WithFields(map[string]interface{}{
		"cmd":       "backfill",
		"data_time": dataTime,
		"filled":    filled,
	}).Info("Backfill completed")

	return nil
}

func calcVolAction(c *cli.Context) error {

	logrus.Info("Starting volatility calculation CMD")

	dataTime, err := utils.ParseDataTime(c.String("dataTime"))
	if err != nil {
		return err
	}

	if err := database.InitVolatilityDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	repo := repository.NewVolatilityRepository()
	rows, err := repo.FindVolatilityAt(context.Background(), dataTime)
	if err != nil {
		return err
	}
	if len(rows) < volatility.ExpectedPairCount {
		return fmt.Errorf("time point incomplete: %d of %d pairs reported",
			len(rows), volatility.ExpectedPairCount)
	}

	indices := volatility.CalculateCurrencyIndices(rows, dataTime)
	if err := repo.UpsertCurrencyVolatility(context.Background(), indices); err != nil {
		return err
	}

	logrus.WithFields(map[string]interface{}{
		"cmd":       "calcvol",
		"data_time": dataTime,
		"indices":   len(indices),
	}).Info("Currency volatility indices calculated")

	return nil
}

// resyncAction replays the stored snapshot of one account through the sync
// pipeline. Useful after a manual database fix: aggregates and configs are
// rebuilt from trades_open without waiting for the agent's next report.
func resyncAction(c *cli.Context) error {

	logrus.Info("Starting account resync CMD")

	accountID := uint(c.Uint("account"))
	if accountID == 0 {
		return fmt.Errorf("--account is required")
	}

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	positions, err := repository.NewPositionRepository().
		FindByAccount(context.Background(), accountID)
	if err != nil {
		return err
	}

	if err := syncer.NewDefault().Sync(context.Background(), accountID, positions); err != nil {
		logrus.WithError(err).Error("Resync failed")
		return err
	}

	logrus.WithFields(map[string]interface{}{
		"cmd":        "resync",
		"account_id": accountID,
		"positions":  len(positions),
	}).Info("Account resynced")

	return nil
}

// Package main provides the whalewatch command line entry point for batch pipeline runs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/whale-tracker/internal/config"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/report"
	"github.com/whale-tracker/internal/service"
	"github.com/whale-tracker/internal/storage"
	"github.com/whale-tracker/internal/types"
	str2duration "github.com/xhit/go-str2duration/v2"
)

var walletsFlag = &cli.StringSliceFlag{
	Name:    "wallet",
	Aliases: []string{"w"},
	Usage:   "limit the run to these addresses (repeatable)",
}

func main() {
	app := &cli.App{
		Name:  "whalewatch",
		Usage: "collect, normalize and score large bitcoin wallets",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the pipeline (prices, collect, normalize, metrics)",
				Flags: []cli.Flag{
					walletsFlag,
					&cli.BoolFlag{Name: "alerts", Usage: "evaluate and deliver alerts after metrics"},
				},
				Action: func(c *cli.Context) error {
					stages := append([]types.Stage{}, service.DefaultStages...)
					if c.Bool("alerts") {
						stages = append(stages, types.StageAlerts)
					}
					return runStages(c, stages, types.Date{})
				},
			},
			stageCommand("prices", "extend the reference price table up to today", types.StagePrices),
			stageCommand("collect", "harvest raw wallet histories from the ledger", types.StageCollect),
			stageCommand("process", "rebuild daily aggregates from raw histories", types.StageNormalize),
			stageCommand("metrics", "recompute wallet metrics and the summary table", types.StageMetrics),
			{
				Name:  "alerts",
				Usage: "evaluate recent daily activity and deliver alerts",
				Flags: []cli.Flag{
					walletsFlag,
					&cli.StringFlag{Name: "lookback", Usage: "how far back to look, e.g. 24h or 7d (default from ALERT_LOOKBACK)"},
				},
				Action: func(c *cli.Context) error {
					var since types.Date
					if v := c.String("lookback"); v != "" {
						d, err := str2duration.ParseDuration(v)
						if err != nil {
							return cli.Exit(fmt.Sprintf("invalid lookback %q: %v", v, err), 2)
						}
						since = types.DateOf(time.Now().Add(-d))
					}
					return runStages(c, []types.Stage{types.StageAlerts}, since)
				},
			},
			{
				Name:  "export",
				Usage: "write the wallet summary table as an xlsx workbook",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path (default <data dir>/whale_summary.xlsx)"},
				},
				Action: export,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func stageCommand(name, usage string, stage types.Stage) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{walletsFlag},
		Action: func(c *cli.Context) error {
			return runStages(c, []types.Stage{stage}, types.Date{})
		},
	}
}

// setup loads configuration and builds the logger every command shares
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	return cfg, logger, nil
}

func runStages(c *cli.Context, stages []types.Stage, since types.Date) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := a.pipeline.Run(ctx, service.RunOptions{
		Stages:  stages,
		Wallets: c.StringSlice("wallet"),
		Since:   since,
	})
	if result != nil {
		printResult(result)
	}
	if err != nil {
		logger.WithError(err).Error("Pipeline run aborted")
		return err
	}

	for _, stage := range result.Stages {
		if stage.HasFailures() {
			logger.WithFields(map[string]interface{}{
				"stage":  stage.Stage,
				"failed": len(stage.Failed),
			}).Warn("Some wallets failed, rerun to retry them")
		}
	}
	return nil
}

func printResult(result *service.RunResult) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}

func export(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" {
		out = filepath.Join(cfg.Data.BaseDir, "whale_summary.xlsx")
	}

	queries := storage.NewFileQueries(storage.NewFileStore(cfg.Data, logger))
	rows, err := queries.List(context.Background())
	if err != nil {
		return err
	}
	if err := report.WriteSummaryXLSX(out, rows); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"path":    out,
		"wallets": len(rows),
	}).Info("Exported wallet summary")
	return nil
}

// Command train runs the training pipeline: it reads the student CSV, writes
// the train/test splits, selects the best candidate regressor and persists
// the fitted transformer and model under the artifact directory.
//
//	train -config train.yaml -data notebook/data/stud.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/YuminosukeSato/examscore/config"
	"github.com/YuminosukeSato/examscore/history"
	"github.com/YuminosukeSato/examscore/pkg/log"
	"github.com/YuminosukeSato/examscore/training"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML configuration file")
		dataPath    = flag.String("data", "", "input CSV (overrides data_path)")
		artifactDir = flag.String("artifacts", "", "artifact directory (overrides artifact_dir)")
		listRuns    = flag.Int("runs", 0, "print the last N recorded runs and exit")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *dataPath != "" {
		cfg.DataPath = *dataPath
	}
	if *artifactDir != "" {
		cfg.ArtifactDir = *artifactDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.SetProvider(log.NewZerologProvider(log.ToLogLevel(cfg.LogLevel)))
	logger := log.GetLoggerWithName("train")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listRuns > 0 {
		if err := printRuns(ctx, cfg, *listRuns); err != nil {
			logger.Error("Failed to read run history", err)
			os.Exit(1)
		}
		return
	}

	res, err := training.NewPipeline(cfg).Run(ctx)
	if err != nil {
		logger.Error("Training run failed", err, log.PathKey, cfg.DataPath)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tTEST R2\tCV R2\tRMSE\tMAE")
	for _, e := range res.Report.Entries {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.3f\t%.3f\n", e.Name, e.TestScore, e.CVScore, e.RMSE, e.MAE)
	}
	w.Flush()
	fmt.Printf("\nselected %s (test R2 %.4f), run %s\n", res.Model.Name, res.Model.TestScore, res.RunID)
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printRuns(ctx context.Context, cfg *config.Config, n int) error {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(ctx, n)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tMODEL\tTEST R2")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.Winner, r.TestScore)
	}
	return w.Flush()
}

// Command server serves the prediction form over the artifacts written by
// the train command.
//
//	server -addr :8080 -artifacts artifact
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YuminosukeSato/examscore/config"
	"github.com/YuminosukeSato/examscore/inference"
	"github.com/YuminosukeSato/examscore/pkg/log"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML configuration file")
		addr        = flag.String("addr", "", "listen address (overrides server_addr)")
		artifactDir = flag.String("artifacts", "", "artifact directory (overrides artifact_dir)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	if *artifactDir != "" {
		cfg.ArtifactDir = *artifactDir
	}
	log.SetProvider(log.NewZerologProvider(log.ToLogLevel(cfg.LogLevel)))
	logger := log.GetLoggerWithName("server")

	predictor := inference.NewPredictor(cfg)
	// 起動時に読めなくても、学習後の最初のリクエストで再試行される
	if info, err := predictor.Info(); err != nil {
		logger.Warn("Artifacts not loaded yet", "error", err, log.PathKey, cfg.ArtifactDir)
	} else {
		logger.Info("Serving model",
			log.ModelNameKey, info.Name,
			log.RunIDKey, info.RunID,
			log.R2ScoreKey, info.TestScore,
		)
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           newHandler(predictor),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Listening", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", err)
	}
}

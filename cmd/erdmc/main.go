package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/output"
	"github.com/wildstyl3r/erdmc/internal/sim"
	"github.com/wildstyl3r/erdmc/internal/utils"
)

var (
	logLevel  string
	workers   int
	seed      uint64
	backend   string
	outputDir string
	mergeOut  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "erdmc",
		Short:         "Monte Carlo simulation of ERD and RBS spectra",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	runCmd := &cobra.Command{
		Use:   "run [config]",
		Short: "run the simulation described by a TOML or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().IntVar(&workers, "workers", 0, "number of workers (overrides the config)")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (overrides the config)")
	runCmd.Flags().StringVar(&backend, "rng", "", "random stream backend: host or counter (overrides the config)")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (overrides the config)")

	mergeCmd := &cobra.Command{
		Use:   "merge [dir] [pattern]",
		Short: "concatenate event or range files of several runs in natural order",
		Args:  cobra.ExactArgs(2),
		RunE:  mergeFiles,
	}
	mergeCmd.Flags().StringVarP(&mergeOut, "output", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(runCmd, mergeCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	return logger, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return err
	}
	startTime := time.Now()

	s, err := config.Load(args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		s.Workers = workers
	}
	if flags.Changed("seed") {
		s.Seed = seed
	}
	if flags.Changed("rng") {
		s.RNG = backend
	}
	if flags.Changed("output-dir") {
		s.OutputDir = outputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.WithField("config", args[0])
	runner, err := sim.New(ctx, s, log)
	if err != nil {
		return err
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	files := sim.FileNames(utils.GetFilename(args[0]), s.Seed)
	if err := res.Write(s.OutputDir, s.MakeDir, files); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"events":  len(res.Real.Events),
		"ranges":  len(res.Real.Ranges),
		"output":  s.OutputDir,
		"elapsed": time.Since(startTime),
	}).Info("done")
	return nil
}

func mergeFiles(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return err
	}
	out := os.Stdout
	if mergeOut != "" {
		f, err := os.Create(mergeOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	merged, err := output.Merge(w, args[0], args[1])
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.WithField("files", len(merged)).Info("merged")
	return nil
}

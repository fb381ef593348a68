package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/AlfredBerg/rod-jobs/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string

type rootFlags struct {
	verbose bool
	trace   bool
}

var flags rootFlags

// v holds the merged configuration: flags over env over config file over defaults
var v = viper.New()

var logger = zap.NewNop()

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags = rootFlags{}

	config.SetDefaults(v)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.json", "config file listing job_titles and target_job_count")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output")

	rootCmd.Flags().IntP("target", "n", 50, "The number of jobs to scrape per job title.")
	rootCmd.Flags().StringP("output-dir", "o", ".", "The directory the <title>_jobs.csv files are written to.")
	rootCmd.Flags().Bool("headless", false, "Run the browser without a window.")
	rootCmd.Flags().String("browser", "", "Path of the browser executable. If empty a Chromium is located or downloaded.")
	rootCmd.Flags().Duration("timeout", 15*time.Second, "The maximum time to wait for the page, a detail panel or a title.")
	rootCmd.Flags().Duration("settle", 3*time.Second, "The time to wait for more jobs to load after scrolling.")
	rootCmd.Flags().String("sqlite", "", "Also store every scraped job in this sqlite database.")
	rootCmd.Flags().Int("metrics-port", 0, "Serve prometheus metrics on this port, 0 disables the server.")
	rootCmd.Flags().BoolVar(&flags.trace, "trace", false, "Show verbose debug information for each browser action.")

	bind := map[string]string{
		"target_job_count": "target",
		"output_dir":       "output-dir",
		"headless":         "headless",
		"browser":          "browser",
		"wait_timeout":     "timeout",
		"settle_interval":  "settle",
		"sqlite":           "sqlite",
		"metrics_port":     "metrics-port",
	}
	for key, flag := range bind {
		cobra.CheckErr(v.BindPFlag(key, rootCmd.Flags().Lookup(flag)))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

var rootCmd = &cobra.Command{
	Use:   "rod-jobs",
	Short: "Scrape Bing job listings for every configured job title into csv files",

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(flags.verbose)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return scrape(cmd)
	},
}

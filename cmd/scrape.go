package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlfredBerg/rod-jobs/internal/browser"
	"github.com/AlfredBerg/rod-jobs/internal/collect"
	"github.com/AlfredBerg/rod-jobs/internal/config"
	"github.com/AlfredBerg/rod-jobs/internal/metrics"
	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers"
	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers/csvfile"
	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers/sqlite"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func scrape(cmd *cobra.Command) error {
	cfg, err := config.Load(v, afero.NewOsFs(), cfgFile)
	switch {
	case errors.Is(err, config.ErrNotFound):
		logger.Error("config file not found, please create it", zap.String("config", cfgFile))
		return nil
	case errors.Is(err, config.ErrNoTitles):
		logger.Error("no job titles found in config, exiting", zap.String("config", cfgFile))
		return nil
	case err != nil:
		logger.Error("could not load config", zap.String("config", cfgFile), zap.Error(err))
		return nil
	}

	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID))
	log.Info("config loaded", zap.Strings("job_titles", cfg.JobTitles), zap.Int("target_job_count", cfg.TargetJobCount))

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort, log)
		defer srv.Stop(context.Background())
	}

	r := &runner{
		cfg: cfg,
		fs:  afero.NewOsFs(),
		log: log,
		newSession: func() (browser.Session, error) {
			return browser.Launch(browser.Options{
				Headless: cfg.Headless,
				Timeout:  cfg.WaitTimeout,
				Bin:      cfg.Browser,
				Trace:    flags.trace,
				Logger:   log,
			})
		},
	}

	if cfg.Sqlite != "" {
		db := &sqlite.SqliteOutput{Database: cfg.Sqlite, RunID: runID}
		if err := db.Init(); err != nil {
			log.Error("could not open sqlite database", zap.String("sqlite", cfg.Sqlite), zap.Error(err))
			return nil
		}
		defer db.Cleanup()
		r.db = db
	}

	r.run(cmd.Context())
	return nil
}

type summary struct {
	Titles  int
	Failed  []string
	Written int
	// Mirrored counts the listings stored in the sqlite mirror
	Mirrored int
}

// runner collects the configured titles one after another, a failing title doesn't stop
// the ones after it.
type runner struct {
	cfg        *config.Config
	fs         afero.Fs
	log        *zap.Logger
	newSession func() (browser.Session, error)
	// db mirrors every listing when set
	db *sqlite.SqliteOutput
}

func (r *runner) run(ctx context.Context) summary {
	s := summary{}
	if err := r.fs.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		r.log.Error("could not create output directory", zap.String("output_dir", r.cfg.OutputDir), zap.Error(err))
		return s
	}

	for _, title := range r.cfg.JobTitles {
		if ctx.Err() != nil {
			r.log.Warn("interrupted, skipping remaining job titles")
			break
		}
		s.Titles++

		start := time.Now()
		written, err := r.collect(ctx, title)
		s.Written += written
		metrics.RecordTerm(title, err == nil, time.Since(start))
		if err != nil {
			s.Failed = append(s.Failed, title)
			r.log.Error("an error occurred while scraping, moving to the next job title", zap.String("term", title), zap.Error(err))
		}
		if r.db != nil {
			s.Mirrored += r.mirrored(title, written)
		}
	}

	r.log.Info("scraping completed for all job titles",
		zap.Int("titles", s.Titles), zap.Strings("failed", s.Failed), zap.Int("written", s.Written), zap.Int("mirrored", s.Mirrored))
	return s
}

// mirrored reads back how many listings of title reached the sqlite mirror
func (r *runner) mirrored(title string, written int) int {
	rows, err := r.db.Listings(r.db.RunID, title)
	if err != nil {
		r.log.Warn("could not read back the sqlite mirror", zap.String("term", title), zap.Error(err))
		return 0
	}
	if len(rows) != written {
		r.log.Warn("sqlite mirror is out of step with the csv file", zap.String("term", title),
			zap.Int("written", written), zap.Int("mirrored", len(rows)))
	}
	return len(rows)
}

// collect runs the job for title, a panic inside the job is returned as an error
func (r *runner) collect(ctx context.Context, title string) (written int, err error) {
	j := &collect.Job{
		Term:       title,
		Target:     r.cfg.TargetJobCount,
		Host:       r.cfg.SearchHost,
		OutputDir:  r.cfg.OutputDir,
		Settle:     r.cfg.SettleInterval,
		NewSession: r.newSession,
		Open:       r.open(title),
		Logger:     r.log,
	}

	var pc panics.Catcher
	pc.Try(func() {
		written, err = j.Collect(ctx)
	})
	if rec := pc.Recovered(); rec != nil {
		return written, fmt.Errorf("collecting %q panicked: %w", title, rec.AsError())
	}
	return written, err
}

func (r *runner) open(title string) func(path string) (outputHandlers.Handler, error) {
	return func(path string) (outputHandlers.Handler, error) {
		out, err := csvfile.New(r.fs, path)
		if err != nil {
			return nil, err
		}
		if r.db == nil {
			return out, nil
		}
		return outputHandlers.Multi{out, r.db.ForTerm(title)}, nil
	}
}

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kubetraining/sitesync"
	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/build"
	"github.com/kubetraining/sitesync/internal/config"
	"github.com/kubetraining/sitesync/internal/revision"
	"github.com/kubetraining/sitesync/internal/runner"
	"github.com/kubetraining/sitesync/internal/sync/planner"
	"github.com/kubetraining/sitesync/internal/telemetry"
	"github.com/kubetraining/sitesync/synctypes"
)

func (a *app) publish(c *cli.Context) error {
	return a.runPipeline(c, false)
}

func (a *app) plan(c *cli.Context) error {
	return a.runPipeline(c, true)
}

func (a *app) runPipeline(c *cli.Context, dryRun bool) error {
	if c.NArg() != 1 {
		return errors.New("usage", errors.KindConfig,
			fmt.Errorf("expected exactly one environment argument (dev, tst, qas, stg, prd), got %d", c.NArg()))
	}
	ctx := c.Context

	cfg, err := a.loadConfig(c)
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	target, targetCfg, err := cfg.Target(c.Args().First())
	if err != nil {
		return err
	}
	logger := a.logger.With("env", string(target.Name))

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "sitesync",
		ServiceVersion: version,
		Environment:    string(target.Name),
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		BatchTimeout:   5 * time.Second,
	}, logger)
	if err != nil {
		return errors.New("setup telemetry", errors.KindConfig, err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	rev, err := revision.Resolve(cfg.ContentDir)
	if err != nil {
		logger.Warn("could not resolve source revision", "error", err)
	}
	if rev.Commit != "" {
		logger.Info("source revision", "commit", rev.Short(), "branch", rev.Branch)
	}

	client, err := sitesync.NewStoreClient(ctx, target)
	if err != nil {
		return err
	}

	p, err := sitesync.New(target, client,
		sitesync.WithBuilder(newBuilder(c, cfg, target, targetCfg, a)),
		sitesync.WithContentDir(cfg.ContentDir),
		sitesync.WithConcurrency(cfg.Concurrency),
		sitesync.WithCallTimeout(cfg.CallTimeout),
		sitesync.WithRetryPolicy(cfg.RetryPolicy()),
		sitesync.WithRateLimit(cfg.RateLimit),
		sitesync.WithInclude(cfg.Include...),
		sitesync.WithExclude(cfg.Exclude...),
		sitesync.WithRevision(rev.Commit),
		sitesync.WithDryRun(dryRun),
		sitesync.WithLogger(a.logger),
		sitesync.WithTracer(tp.Tracer()),
		sitesync.WithMetrics(tp.Metrics()),
	)
	if err != nil {
		return err
	}

	report, runErr := p.Run(ctx)

	if dryRun && runErr == nil {
		if err := printPlan(a, report); err != nil {
			return err
		}
	}
	if path := c.String("report"); path != "" && report != nil {
		if err := report.WriteFile(path); err != nil {
			logger.Error("could not write report", "path", path, "error", err)
			if runErr == nil {
				return errors.New("write report", errors.KindInternal, err)
			}
		}
	}
	return runErr
}

// applyFlags lets command line flags override the loaded configuration.
// The result is validated afterwards, so a flag can fix a bad file value.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("content-dir") {
		cfg.ContentDir = c.String("content-dir")
	}
	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("hugo-bin") {
		cfg.HugoBin = c.String("hugo-bin")
	}
	if c.IsSet("hugo-arg") {
		cfg.HugoArgs = append(cfg.HugoArgs, c.StringSlice("hugo-arg")...)
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("max-retries") {
		cfg.Retry.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("timeout") {
		cfg.CallTimeout = c.Duration("timeout")
	}
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Float64("rate-limit")
	}
	if c.IsSet("include") {
		cfg.Include = c.StringSlice("include")
	}
	if c.IsSet("exclude") {
		cfg.Exclude = c.StringSlice("exclude")
	}
}

func newBuilder(c *cli.Context, cfg *config.Config, target synctypes.Target, targetCfg config.TargetConfig, a *app) build.Builder {
	if c.Bool("skip-build") {
		dir := cfg.OutputDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.ContentDir, dir)
		}
		return build.PrebuiltBuilder{Dir: dir}
	}

	baseURL := targetCfg.BaseURL
	if c.IsSet("base-url") {
		baseURL = c.String("base-url")
	}

	b := build.NewHugoBuilder()
	b.Bin = cfg.HugoBin
	b.OutputDir = cfg.OutputDir
	b.BaseURL = baseURL
	b.Environment = string(target.Name)
	b.ExtraArgs = cfg.HugoArgs
	b.Env = cfg.HugoEnv
	b.Runner = runner.New()
	b.Logger = a.logger
	return b
}

func printPlan(a *app, report *sitesync.Report) error {
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REASON\tSIZE\tKEY")
	for _, e := range report.Manifest.Entries {
		fmt.Fprintf(w, "%s\t%d\t%s\n", e.Reason, e.Asset.Size, e.Asset.Key)
	}
	if err := w.Flush(); err != nil {
		return errors.New("print plan", errors.KindInternal, err)
	}

	fmt.Fprintf(a.stdout, "\n%d to upload (%d bytes) to %s: %s\n",
		report.Stats.Entries, report.Stats.Bytes, report.Bucket, reasonSummary(report.Stats))
	return nil
}

func reasonSummary(stats planner.ManifestStats) string {
	return fmt.Sprintf("%d new, %d modified, %d unverifiable",
		stats.ByReason[synctypes.ReasonNew].Count,
		stats.ByReason[synctypes.ReasonModified].Count,
		stats.ByReason[synctypes.ReasonUnverifiable].Count,
	)
}

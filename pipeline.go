package sitesync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/build"
	"github.com/kubetraining/sitesync/internal/s3api"
	"github.com/kubetraining/sitesync/internal/sync/executor"
	"github.com/kubetraining/sitesync/internal/sync/planner"
	"github.com/kubetraining/sitesync/internal/sync/scanner"
	"github.com/kubetraining/sitesync/internal/telemetry"
	"github.com/kubetraining/sitesync/synctypes"
)

// State is a stage of a publish run.
type State string

const (
	StateIdle      State = "idle"
	StateBuilding  State = "building"
	StatePlanning  State = "planning"
	StateSyncing   State = "syncing"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Pipeline publishes one build to one target. A Pipeline runs once.
type Pipeline struct {
	target synctypes.Target
	client s3api.S3API

	builder      build.Builder
	contentDir   string
	filesystem   billy.Filesystem
	osFilesystem bool

	concurrency int
	callTimeout time.Duration
	retry       executor.RetryPolicy
	rateLimit   float64
	include     []string
	exclude     []string
	revision    string
	dryRun      bool

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics

	state       State
	transitions []State
}

// New creates a pipeline publishing to target through client.
func New(target synctypes.Target, client s3api.S3API, opts ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, errors.New("new pipeline", errors.KindInternal, fmt.Errorf("store client is required"))
	}
	if target.Bucket == "" {
		return nil, errors.New("new pipeline", errors.KindConfig, fmt.Errorf("%w: bucket is empty", errors.ErrInvalidTarget))
	}

	p := &Pipeline{
		target:       target,
		client:       client,
		builder:      build.NewHugoBuilder(),
		contentDir:   ".",
		filesystem:   osfs.New("/"),
		osFilesystem: true,
		concurrency:  executor.DefaultConcurrency,
		callTimeout:  executor.DefaultCallTimeout,
		retry:        executor.DefaultRetryPolicy(),
		logger:       slog.New(slog.DiscardHandler),
		tracer:       telemetry.NoopTracer(),
		metrics:      telemetry.NoopMetrics(),
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.With("env", string(target.Name), "bucket", target.Bucket, "prefix", target.NormalizedPrefix())
	p.transitions = []State{StateIdle}
	return p, nil
}

// State returns the current stage.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) transition(ctx context.Context, to State) {
	from := p.state
	p.state = to
	p.transitions = append(p.transitions, to)

	level := slog.LevelInfo
	if to == StateFailed {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "state transition", "from", string(from), "state", string(to))
}

// Run executes build, plan and sync. The returned report is never nil and
// carries the exit code of the run; the error is non-nil whenever the run
// ended in StateFailed.
//
// A failed listing stops the run before planning: nothing is uploaded when
// the remote state is unknown.
func (p *Pipeline) Run(ctx context.Context) (report *Report, err error) {
	if p.state != StateIdle {
		return nil, errors.New("run", errors.KindInternal, fmt.Errorf("pipeline already ran (state %s)", p.state))
	}

	report = newReport(p.target, p.revision, p.dryRun)
	p.logger = p.logger.With("run_id", report.RunID)

	ctx, span := p.tracer.Start(ctx, "sitesync.publish", trace.WithAttributes(
		attribute.String("sitesync.run_id", report.RunID),
		attribute.String("sitesync.env", string(p.target.Name)),
		attribute.String("sitesync.bucket", p.target.Bucket),
		attribute.String("sitesync.prefix", p.target.NormalizedPrefix()),
		attribute.Bool("sitesync.dry_run", p.dryRun),
	))
	defer func() {
		if err != nil {
			p.transition(ctx, StateFailed)
			p.logger.ErrorContext(ctx, "publish failed", "error", err, "exit_code", errors.ExitCode(err))
		} else {
			p.transition(ctx, StateSucceeded)
		}
		report.finish(p.state, p.transitions, err)
		p.metrics.RecordRun(ctx, string(p.target.Name), string(p.state), report.Duration)
		telemetry.End(span, err)
	}()

	p.transition(ctx, StateBuilding)
	outputDir, err := p.build(ctx)
	if err != nil {
		return report, err
	}
	report.OutputDir = outputDir

	p.transition(ctx, StatePlanning)
	manifest, err := p.plan(ctx, outputDir, report)
	if err != nil {
		return report, err
	}

	if manifest.Empty() {
		p.logger.InfoContext(ctx, "nothing to upload", "assets", report.LocalAssets)
		return report, nil
	}
	if p.dryRun {
		p.logger.InfoContext(ctx, "dry run, skipping upload",
			"entries", manifest.Len(), "bytes", manifest.TotalBytes())
		return report, nil
	}

	p.transition(ctx, StateSyncing)
	result := p.sync(ctx, manifest)
	report.Result = result
	return report, resultError(ctx, result)
}

func (p *Pipeline) build(ctx context.Context) (string, error) {
	ctx, span := p.tracer.Start(ctx, "sitesync.build")

	outputDir, err := p.builder.Build(ctx, p.contentDir)
	if err == nil && p.osFilesystem {
		outputDir, err = filepath.Abs(outputDir)
		if err != nil {
			err = errors.New("build", errors.KindBuild, err)
		}
	}
	if err != nil && errors.KindOf(err) == errors.KindInternal {
		err = errors.New("build", errors.KindBuild, err)
	}

	telemetry.End(span, err)
	if err != nil {
		return "", err
	}
	p.logger.InfoContext(ctx, "build complete", "output_dir", outputDir)
	return outputDir, nil
}

func (p *Pipeline) plan(ctx context.Context, outputDir string, report *Report) (manifest synctypes.Manifest, err error) {
	ctx, span := p.tracer.Start(ctx, "sitesync.plan")
	defer func() { telemetry.End(span, err) }()

	s := scanner.NewScanner(p.client, p.filesystem,
		scanner.WithCallTimeout(p.callTimeout),
		scanner.WithRetryPolicy(p.retry),
		scanner.WithConcurrency(p.concurrency),
		scanner.WithLogger(p.logger),
	)

	assets, err := s.ScanLocal(ctx, outputDir, p.include, p.exclude)
	if err != nil {
		return synctypes.Manifest{}, err
	}
	if len(assets) == 0 {
		return synctypes.Manifest{}, errors.New("scan", errors.KindBuild,
			fmt.Errorf("%w: no files in %s", errors.ErrEmptyOutput, outputDir))
	}
	report.LocalAssets = len(assets)

	remote, err := s.ScanRemote(ctx, p.target)
	if err != nil {
		return synctypes.Manifest{}, err
	}
	report.RemoteObjects = len(remote)

	manifest = planner.ComputeManifest(assets, remote)
	report.Manifest = manifest
	report.Stats = planner.Stats(manifest)

	span.SetAttributes(
		attribute.Int("sitesync.local_assets", len(assets)),
		attribute.Int("sitesync.remote_objects", len(remote)),
		attribute.Int("sitesync.manifest_entries", manifest.Len()),
	)
	p.logger.InfoContext(ctx, "plan complete",
		"assets", len(assets),
		"remote_objects", len(remote),
		"entries", manifest.Len(),
		"bytes", manifest.TotalBytes(),
	)
	return manifest, nil
}

func (p *Pipeline) sync(ctx context.Context, manifest synctypes.Manifest) *synctypes.SyncResult {
	ctx, span := p.tracer.Start(ctx, "sitesync.sync")

	opts := []executor.Option{
		executor.WithConcurrency(p.concurrency),
		executor.WithCallTimeout(p.callTimeout),
		executor.WithRetryPolicy(p.retry),
		executor.WithRateLimit(p.rateLimit),
		executor.WithLogger(p.logger),
	}
	if p.revision != "" {
		opts = append(opts, executor.WithMetadata(map[string]string{
			synctypes.MetadataSourceRevision: p.revision,
		}))
	}

	result := executor.New(p.client, p.filesystem, opts...).Execute(ctx, manifest, p.target)

	span.SetAttributes(
		attribute.Int("sitesync.succeeded", len(result.Succeeded)),
		attribute.Int("sitesync.failed", len(result.Failed)),
		attribute.Int("sitesync.not_attempted", len(result.NotAttempted)),
		attribute.Int64("sitesync.bytes_uploaded", result.BytesUploaded),
	)
	telemetry.End(span, resultError(ctx, result))
	p.metrics.RecordUploads(ctx, string(p.target.Name),
		len(result.Succeeded), len(result.Failed), len(result.NotAttempted), result.BytesUploaded)

	p.logger.InfoContext(ctx, "sync complete", "summary", result.Summary())
	return result
}

// resultError turns the aggregate outcome of the uploads into the run error.
func resultError(ctx context.Context, result *synctypes.SyncResult) error {
	if result.Success() {
		return nil
	}

	if len(result.NotAttempted) > 0 || ctx.Err() != nil {
		return errors.New("sync", errors.KindCancelled, fmt.Errorf("%w: %s", errors.ErrCancelled, result.Summary()))
	}

	kind := errors.KindPermanent
	for _, f := range result.Failed {
		if f.Transient {
			kind = errors.KindTransient
			break
		}
	}

	if len(result.Succeeded) == 0 {
		return errors.New("sync", kind, fmt.Errorf("%w: %s", errors.ErrUploadFailed, result.Summary()))
	}
	return errors.New("sync", kind, fmt.Errorf("%w: %s", errors.ErrPartialUpload, result.Summary()))
}

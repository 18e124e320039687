package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/logging"
	"github.com/kubetraining/sitesync/internal/runner"
)

// HugoBuilder builds the site with the hugo binary.
type HugoBuilder struct {
	// Bin is the hugo executable (default "hugo")
	Bin string

	// OutputDir is the destination; relative paths are resolved against
	// the content directory (default "public")
	OutputDir string

	// BaseURL overrides the site's baseURL when set
	BaseURL string

	// Environment is passed as --environment when set
	Environment string

	// ExtraArgs are appended to the hugo command line
	ExtraArgs []string

	// Env is added to hugo's environment (e.g. HUGO_PARAMS_* overrides)
	Env map[string]string

	Runner runner.Runner
	Logger *slog.Logger
}

// NewHugoBuilder creates a builder with defaults.
func NewHugoBuilder() *HugoBuilder {
	return &HugoBuilder{
		Bin:       "hugo",
		OutputDir: "public",
		Runner:    runner.New(),
		Logger:    slog.New(slog.DiscardHandler),
	}
}

// Args returns the hugo command line for contentDir and outputDir.
func (b *HugoBuilder) Args(contentDir, outputDir string) []string {
	args := []string{
		"--source", contentDir,
		"--destination", outputDir,
		"--cleanDestinationDir",
		"--minify",
	}
	if b.BaseURL != "" {
		args = append(args, "--baseURL", b.BaseURL)
	}
	if b.Environment != "" {
		args = append(args, "--environment", b.Environment)
	}
	return append(args, b.ExtraArgs...)
}

// Build runs hugo and returns the absolute output directory. A failing
// hugo run is a KindBuild error carrying the tail of its stderr.
func (b *HugoBuilder) Build(ctx context.Context, contentDir string) (string, error) {
	contentDir, err := filepath.Abs(contentDir)
	if err != nil {
		return "", errors.New("build", errors.KindBuild, err)
	}
	if err := checkDir(contentDir); err != nil {
		return "", errors.New("build", errors.KindBuild, fmt.Errorf("content %w", err))
	}

	outputDir := b.OutputDir
	if outputDir == "" {
		outputDir = "public"
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(contentDir, outputDir)
	}

	bin := b.Bin
	if bin == "" {
		bin = "hugo"
	}
	run := b.Runner
	if run == nil {
		run = runner.New()
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	args := b.Args(contentDir, outputDir)
	logger.InfoContext(ctx, "building site", "bin", bin, "source", contentDir, "destination", outputDir)

	stdout := logging.NewLineWriter(logger, slog.LevelDebug, "hugo output", "stdout")
	stderr := logging.NewLineWriter(logger, slog.LevelWarn, "hugo output", "stderr")
	opts := []runner.Option{
		runner.WithWorkingDir(contentDir),
		runner.WithStdoutWriter(stdout),
		runner.WithStderrWriter(stderr),
	}
	for k, v := range b.Env {
		opts = append(opts, runner.WithEnvVar(k, v))
	}

	result, err := run.Run(ctx, bin, args, opts...)
	stdout.Flush()
	stderr.Flush()
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.New("build", errors.KindCancelled, ctx.Err())
		}
		if result != nil && result.Stderr != "" {
			err = fmt.Errorf("%w: %s", err, tail(result.Stderr, 20))
		}
		return "", errors.New("build", errors.KindBuild, err)
	}
	if err := checkDir(outputDir); err != nil {
		return "", errors.New("build", errors.KindBuild, err)
	}
	return outputDir, nil
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

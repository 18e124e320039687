package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/config"
	"github.com/kubetraining/sitesync/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, logger: logging.Discard()}

	if err := a.cli().RunContext(ctx, args); err != nil {
		fmt.Fprintf(stderr, "sitesync: %v\n", err)
		return errors.ExitCode(err)
	}
	return errors.ExitOK
}

func usageError(_ *cli.Context, err error, _ bool) error {
	return errors.New("usage", errors.KindConfig, err)
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:            "sitesync",
		Usage:           "Build a static site and publish it additively to object storage",
		Version:         version,
		Writer:          a.stdout,
		ErrWriter:       a.stderr,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file (default: ./sitesync.yaml when present)",
				EnvVars: []string{"SITESYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "Path to a .env file (default: ./.env when present)",
				EnvVars: []string{"SITESYNC_ENV_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error",
				Value:   "info",
				EnvVars: []string{"SITESYNC_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format: text or json",
				Value:   logging.FormatText,
				EnvVars: []string{"SITESYNC_LOG_FORMAT"},
			},
		},
		Before: a.setupLogging,
		Commands: []*cli.Command{
			{
				Name:         "publish",
				Usage:        "Build the site and upload new and changed files",
				ArgsUsage:    "<env>",
				Flags:        runFlags(),
				OnUsageError: usageError,
				Action:       a.publish,
			},
			{
				Name:         "plan",
				Usage:        "Build the site and print what publish would upload",
				ArgsUsage:    "<env>",
				Flags:        runFlags(),
				OnUsageError: usageError,
				Action:       a.plan,
			},
			{
				Name:         "targets",
				Usage:        "List the configured environment targets",
				OnUsageError: usageError,
				Action:       a.targets,
			},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Present() {
				return errors.New("usage", errors.KindConfig, fmt.Errorf("unknown command %q", c.Args().First()))
			}
			return cli.ShowAppHelp(c)
		},
		OnUsageError:   usageError,
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "content-dir", Usage: "Hugo site directory"},
		&cli.StringFlag{Name: "output-dir", Usage: "Build output directory, relative to the content directory"},
		&cli.BoolFlag{Name: "skip-build", Usage: "Publish the existing output directory without running hugo"},
		&cli.StringFlag{Name: "hugo-bin", Usage: "Hugo executable"},
		&cli.StringSliceFlag{Name: "hugo-arg", Usage: "Extra hugo command line `ARG` (repeatable)"},
		&cli.StringFlag{Name: "base-url", Usage: "Override the site baseURL"},
		&cli.IntFlag{Name: "concurrency", Usage: "Number of parallel uploads"},
		&cli.IntFlag{Name: "max-retries", Usage: "Retries per upload after a transient failure"},
		&cli.DurationFlag{Name: "timeout", Usage: "Timeout of each storage call"},
		&cli.Float64Flag{Name: "rate-limit", Usage: "Maximum uploads started per second (0: unlimited)"},
		&cli.StringSliceFlag{Name: "include", Usage: "Only publish files matching `PATTERN` (repeatable)"},
		&cli.StringSliceFlag{Name: "exclude", Usage: "Skip files matching `PATTERN` (repeatable)"},
		&cli.StringFlag{Name: "report", Usage: "Write a JSON report to `FILE`"},
	}
}

func (a *app) setupLogging(c *cli.Context) error {
	logger, err := logging.New(a.stderr, c.String("log-level"), c.String("log-format"))
	if err != nil {
		return errors.New("setup logging", errors.KindConfig, err)
	}
	a.logger = logger
	return nil
}

func (a *app) loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: c.String("config"),
		EnvFile:    c.String("env-file"),
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("configuration loaded", "targets", len(cfg.Targets))
	return cfg, nil
}

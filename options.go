package sitesync

import (
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/kubetraining/sitesync/internal/build"
	"github.com/kubetraining/sitesync/internal/sync/executor"
	"github.com/kubetraining/sitesync/internal/telemetry"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Stage transitions are logged at INFO.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithMetrics sets the instruments that record run outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithBuilder sets the site builder. The default runs hugo.
func WithBuilder(b build.Builder) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.builder = b
		}
	}
}

// WithContentDir sets the directory handed to the builder.
func WithContentDir(dir string) Option {
	return func(p *Pipeline) {
		p.contentDir = dir
	}
}

// WithFilesystem reads the build output from filesystem instead of the
// operating system. Output directories are then used as returned by the
// builder.
func WithFilesystem(filesystem billy.Filesystem) Option {
	return func(p *Pipeline) {
		if filesystem != nil {
			p.filesystem = filesystem
			p.osFilesystem = false
		}
	}
}

// WithConcurrency sets the number of upload workers.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithCallTimeout bounds every store call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// WithRetryPolicy sets the retry policy of list, head and upload calls.
func WithRetryPolicy(policy executor.RetryPolicy) Option {
	return func(p *Pipeline) {
		p.retry = policy
	}
}

// WithRateLimit caps upload attempts per second; zero means no limit.
func WithRateLimit(perSecond float64) Option {
	return func(p *Pipeline) {
		p.rateLimit = perSecond
	}
}

// WithInclude limits publishing to the output files matching patterns.
func WithInclude(patterns ...string) Option {
	return func(p *Pipeline) {
		p.include = append(p.include, patterns...)
	}
}

// WithExclude skips the output files matching patterns.
func WithExclude(patterns ...string) Option {
	return func(p *Pipeline) {
		p.exclude = append(p.exclude, patterns...)
	}
}

// WithRevision records the source commit on every uploaded object.
func WithRevision(commit string) Option {
	return func(p *Pipeline) {
		p.revision = commit
	}
}

// WithDryRun stops after planning; nothing is uploaded.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) {
		p.dryRun = dryRun
	}
}

// Package scanner discovers what a run has to compare: the assets of the
// local build output and the objects already stored under the target
// prefix.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/s3api"
	"github.com/kubetraining/sitesync/internal/sync/retry"
	"github.com/kubetraining/sitesync/synctypes"
)

// Scanner walks a build output directory and lists the remote prefix.
type Scanner struct {
	client         s3api.Lister
	filesystem     billy.Filesystem
	patternMatcher *PatternMatcher
	callTimeout    time.Duration
	retry          retry.Policy
	concurrency    int
	logger         *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithCallTimeout bounds every list page and head call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithRetryPolicy sets the retries of transient list and head failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Scanner) {
		s.retry = p
	}
}

// WithConcurrency bounds the number of concurrent head calls.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScanner creates a scanner reading local files from filesystem and
// remote objects through client.
func NewScanner(client s3api.Lister, filesystem billy.Filesystem, opts ...Option) *Scanner {
	s := &Scanner{
		client:         client,
		filesystem:     filesystem,
		patternMatcher: NewPatternMatcher(),
		callTimeout:    60 * time.Second,
		retry:          retry.Default(),
		concurrency:    runtime.NumCPU(),
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanLocal walks root and returns one Asset per regular file, sorted by
// key. Files rejected by the include/exclude patterns are skipped. Each
// asset is hashed and given a content type.
func (s *Scanner) ScanLocal(
	ctx context.Context,
	root string,
	includePatterns []string,
	excludePatterns []string,
) ([]synctypes.Asset, error) {
	if errs := s.patternMatcher.ValidatePatterns(append(append([]string{}, includePatterns...), excludePatterns...)); len(errs) > 0 {
		return nil, errors.New("scan", errors.KindConfig, errs[0]).WithCode(errors.CodeInvalidInput)
	}

	info, err := s.filesystem.Stat(root)
	if err != nil {
		return nil, errors.New("scan", errors.KindBuild, fmt.Errorf("build output %s: %w", root, err))
	}
	if !info.IsDir() {
		return nil, errors.New("scan", errors.KindBuild, fmt.Errorf("build output %s is not a directory", root))
	}

	var assets []synctypes.Asset
	skipped := 0

	err = util.Walk(s.filesystem, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		key := filepath.ToSlash(relPath)

		if !s.patternMatcher.ShouldIncludeFile(key, includePatterns, excludePatterns) {
			skipped++
			return nil
		}

		hash, contentType, err := s.hashFile(path, key)
		if err != nil {
			return errors.New("hash", errors.KindBuild, err).WithKey(key)
		}

		assets = append(assets, synctypes.Asset{
			Key:         key,
			Path:        path,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			Hash:        hash,
			ContentType: contentType,
		})
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.New("scan", errors.KindCancelled, ctxErr)
		}
		return nil, errors.New("scan", errors.KindBuild, fmt.Errorf("failed to walk directory %s: %w", root, err))
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Key < assets[j].Key })

	s.logger.DebugContext(ctx, "local scan complete", "root", root, "assets", len(assets), "skipped", skipped)
	return assets, nil
}

func (s *Scanner) hashFile(path, key string) (string, string, error) {
	f, err := s.filesystem.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	return hashAndDetect(f, key)
}

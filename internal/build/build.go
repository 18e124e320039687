// Package build runs the static-site generator that produces the output
// directory the pipeline publishes.
package build

import (
	"context"
	"fmt"
	"os"

	"github.com/kubetraining/sitesync/errors"
)

// Builder turns a content tree into a directory of static files.
type Builder interface {
	Build(ctx context.Context, contentDir string) (outputDir string, err error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context, contentDir string) (string, error)

// Build implements Builder.
func (f BuilderFunc) Build(ctx context.Context, contentDir string) (string, error) {
	return f(ctx, contentDir)
}

// PrebuiltBuilder publishes a directory produced earlier, for example by a
// previous CI step.
type PrebuiltBuilder struct {
	Dir string
}

// Build checks that the directory exists and returns it.
func (b PrebuiltBuilder) Build(_ context.Context, _ string) (string, error) {
	if err := checkDir(b.Dir); err != nil {
		return "", errors.New("build", errors.KindBuild, err)
	}
	return b.Dir, nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}
	return nil
}

package sitesync

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/sync/planner"
	"github.com/kubetraining/sitesync/synctypes"
)

// Report describes a finished run. It is written as JSON for CI artifacts.
type Report struct {
	// RunID identifies the run in logs and traces
	RunID string `json:"run_id"`

	Target   synctypes.Environment `json:"target"`
	Bucket   string                `json:"bucket"`
	Prefix   string                `json:"prefix"`
	Revision string                `json:"revision,omitempty"`
	DryRun   bool                  `json:"dry_run"`

	State       State   `json:"state"`
	Transitions []State `json:"transitions"`

	OutputDir     string                `json:"output_dir,omitempty"`
	LocalAssets   int                   `json:"local_assets"`
	RemoteObjects int                   `json:"remote_objects"`
	Manifest      synctypes.Manifest    `json:"manifest"`
	Stats         planner.ManifestStats `json:"stats"`

	// Result is nil when nothing was uploaded
	Result *synctypes.SyncResult `json:"result,omitempty"`

	ExitCode  int           `json:"exit_code"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func newReport(target synctypes.Target, revision string, dryRun bool) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Target:    target.Name,
		Bucket:    target.Bucket,
		Prefix:    target.NormalizedPrefix(),
		Revision:  revision,
		DryRun:    dryRun,
		State:     StateIdle,
		Manifest:  synctypes.Manifest{Entries: []synctypes.ManifestEntry{}},
		Stats:     planner.Stats(synctypes.Manifest{}),
		StartedAt: time.Now().UTC(),
	}
}

func (r *Report) finish(state State, transitions []State, err error) {
	r.State = state
	r.Transitions = append([]State(nil), transitions...)
	r.Duration = time.Since(r.StartedAt)
	r.ExitCode = errors.ExitCode(err)
	if err != nil {
		r.Error = err.Error()
		r.ErrorCode = string(errors.CodeOf(err))
	}
}

// Uploaded returns the keys uploaded by the run.
func (r *Report) Uploaded() []string {
	if r.Result == nil {
		return nil
	}
	return r.Result.Succeeded
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := r.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/synctypes"
)

const sampleConfig = `
content_dir: site
output_dir: dist
concurrency: 4
timeout: 30s
rate_limit: 20
retry:
  max_retries: 5
  initial_interval: 250ms
  max_interval: 4s
  multiplier: 3
exclude:
  - "**/*.map"
  - drafts/
defaults:
  endpoint: https://s3.eu-central-2.wasabisys.com
  region: eu-central-2
  cache_control: public, max-age=300
targets:
  dev:
    bucket: docs-dev
    prefix: /preview/
  prd:
    bucket: docs-prd
    region: us-east-1
    cache_control: public, max-age=3600
    base_url: https://docs.example.org/
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sitesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("SITESYNC_ACCESS_KEY", "AKIAEXAMPLE123")
	t.Setenv("SITESYNC_SECRET_KEY", "secret")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.ContentDir)
	assert.Equal(t, "public", cfg.OutputDir)
	assert.Equal(t, "hugo", cfg.HugoBin)
	assert.Empty(t, cfg.HugoArgs)
	assert.Nil(t, cfg.HugoEnv)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.CallTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxInterval)
	assert.Equal(t, DefaultRegion, cfg.Defaults.Region)
	assert.Empty(t, cfg.Targets)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, sampleConfig)})
	require.NoError(t, err)

	assert.Equal(t, "site", cfg.ContentDir)
	assert.Equal(t, "dist", cfg.OutputDir)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 20.0, cfg.RateLimit)
	assert.Equal(t, []string{"**/*.map", "drafts/"}, cfg.Exclude)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, 4*time.Second, policy.MaxInterval)
	assert.Equal(t, 3.0, policy.Multiplier)
	assert.Equal(t, 6, policy.MaxAttempts())

	assert.Equal(t, []synctypes.Environment{synctypes.Dev, synctypes.Prd}, cfg.TargetNames())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SITESYNC_CONCURRENCY", "16")
	t.Setenv("SITESYNC_QAS_BUCKET", "docs-qas")
	t.Setenv("SITESYNC_QAS_PREFIX", "qa")
	t.Setenv("SITESYNC_PRD_BUCKET", "docs-prd-override")
	t.Setenv("SITESYNC_ENDPOINT", "http://localhost:4566")

	cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, sampleConfig)})
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Concurrency)
	assert.Equal(t, "http://localhost:4566", cfg.Defaults.Endpoint)
	require.Contains(t, cfg.Targets, synctypes.Qas)
	assert.Equal(t, "docs-qas", cfg.Targets[synctypes.Qas].Bucket)
	assert.Equal(t, "qa", cfg.Targets[synctypes.Qas].Prefix)
	assert.Equal(t, "docs-prd-override", cfg.Targets[synctypes.Prd].Bucket)
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SITESYNC_TST_BUCKET=docs-tst\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("SITESYNC_TST_BUCKET") })

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "docs-tst", cfg.Targets[synctypes.Tst].Bucket)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		opts func(t *testing.T) LoadOptions
	}{
		{
			name: "missing config file",
			opts: func(t *testing.T) LoadOptions {
				return LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")}
			},
		},
		{
			name: "missing env file",
			opts: func(t *testing.T) LoadOptions {
				return LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts(t))
			require.Error(t, err)
			assert.Equal(t, errors.KindConfig, errors.KindOf(err))
			assert.Equal(t, errors.ExitConfig, errors.ExitCode(err))
		})
	}
}

func TestLoadDoesNotValidate(t *testing.T) {
	cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, "concurrency: 0\nretry:\n  multiplier: 0.5\n")})
	require.NoError(t, err, "invalid values may still be overridden by flags")
	assert.Equal(t, 0, cfg.Concurrency)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "multiplier")

	cfg.Concurrency = 4
	cfg.Retry.Multiplier = 2
	require.NoError(t, cfg.Validate())
}

func TestLoadHugoSettings(t *testing.T) {
	cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, `
hugo_args:
  - --buildFuture
  - --gc
hugo_env:
  HUGO_PARAMS_SUPPORT_EMAIL: docs@example.org
`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"--buildFuture", "--gc"}, cfg.HugoArgs)
	assert.Equal(t, map[string]string{"HUGO_PARAMS_SUPPORT_EMAIL": "docs@example.org"}, cfg.HugoEnv)
}

func TestTarget(t *testing.T) {
	setCredentials(t)
	cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, sampleConfig)})
	require.NoError(t, err)

	t.Run("inherits defaults", func(t *testing.T) {
		target, _, err := cfg.Target("DEV")
		require.NoError(t, err)

		assert.Equal(t, synctypes.Dev, target.Name)
		assert.Equal(t, "docs-dev", target.Bucket)
		assert.Equal(t, "preview/", target.ListPrefix())
		assert.Equal(t, "https://s3.eu-central-2.wasabisys.com", target.Endpoint)
		assert.Equal(t, "eu-central-2", target.Region)
		assert.Equal(t, "public, max-age=300", target.CacheControl)
		assert.Equal(t, "AKIAEXAMPLE123", target.Credentials.AccessKey)
	})

	t.Run("target overrides", func(t *testing.T) {
		target, tc, err := cfg.Target("prd")
		require.NoError(t, err)

		assert.Equal(t, "us-east-1", target.Region)
		assert.Equal(t, "public, max-age=3600", target.CacheControl)
		assert.Equal(t, "https://docs.example.org/", tc.BaseURL)
	})

	t.Run("per-target credentials", func(t *testing.T) {
		t.Setenv("SITESYNC_STG_BUCKET", "docs-stg")
		t.Setenv("SITESYNC_STG_ACCESS_KEY", "STGKEY")
		t.Setenv("SITESYNC_STG_SECRET_KEY", "stgsecret")
		cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, sampleConfig)})
		require.NoError(t, err)

		target, _, err := cfg.Target("stg")
		require.NoError(t, err)
		assert.Equal(t, "STGKEY", target.Credentials.AccessKey)
		assert.Equal(t, "stgsecret", target.Credentials.SecretKey)
	})
}

func TestTargetErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		creds   bool
		wantErr error
	}{
		{name: "unknown environment", env: "production", creds: true, wantErr: errors.ErrInvalidTarget},
		{name: "unconfigured environment", env: "qas", creds: true, wantErr: errors.ErrInvalidTarget},
		{name: "missing credentials", env: "dev", creds: false, wantErr: errors.ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.creds {
				setCredentials(t)
			}
			cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, sampleConfig)})
			require.NoError(t, err)

			_, _, err = cfg.Target(tt.env)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, errors.ExitConfig, errors.ExitCode(err))
		})
	}
}

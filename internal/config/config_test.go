package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcsync/internal/errdefs"
)

// newFlagSet mirrors the flag definitions in cmd/main.go.
func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("arcsync", pflag.ContinueOnError)
	flags.String("root", "", "")
	flags.String("log-level", "", "")
	flags.String("source", "", "")
	flags.String("base-url", "", "")
	flags.String("file-ext", "", "")
	flags.String("bucket-endpoint", "", "")
	flags.String("bucket-access-key", "", "")
	flags.String("bucket-secret-key", "", "")
	flags.Bool("bucket-secure", true, "")
	flags.String("bucket-prefix", "", "")
	flags.Int("retries", 3, "")
	flags.Int("retry-backoff-ms", 2000, "")
	flags.String("state-backend", "", "")
	flags.String("metrics-addr", "", "")
	flags.BoolP("dry-run", "n", false, "")
	flags.BoolP("verbose", "v", false, "")
	return flags
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	flags := newFlagSet()
	flags.Set("base-url", "https://archive.example.org")

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.RootDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, SourceArchive, cfg.Source.Type)
	assert.Equal(t, "zip", cfg.Source.Archive.FileExt)
	assert.Equal(t, 100, cfg.Catalog.Rows)
	assert.Equal(t, 3, cfg.Catalog.Attempts)
	assert.Equal(t, 2000, cfg.Catalog.RetryBackoffMs)
	assert.Equal(t, StateFile, cfg.State.Backend)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.False(t, cfg.Run.DryRun)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
root_dir: /srv/mirror
log_level: warn
source:
  type: archive
  archive:
    base_url: https://archive.example.org
    file_ext: tar
catalog:
  rows: 250
  attempts: 5
state:
  backend: sqlite
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path, newFlagSet())
	require.NoError(t, err)

	assert.Equal(t, "/srv/mirror", cfg.RootDir)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "tar", cfg.Source.Archive.FileExt)
	assert.Equal(t, 250, cfg.Catalog.Rows)
	assert.Equal(t, 5, cfg.Catalog.Attempts)
	assert.Equal(t, StateSQLite, cfg.State.Backend)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
root_dir: /srv/mirror
source:
  archive:
    base_url: https://archive.example.org
`)

	flags := newFlagSet()
	require.NoError(t, flags.Set("root", "/tmp/elsewhere"))
	require.NoError(t, flags.Set("retries", "7"))
	require.NoError(t, flags.Set("dry-run", "true"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/elsewhere", cfg.RootDir)
	assert.Equal(t, 7, cfg.Catalog.Attempts)
	assert.True(t, cfg.Run.DryRun)
}

func TestVerboseForcesDebugLevel(t *testing.T) {
	flags := newFlagSet()
	flags.Set("base-url", "https://archive.example.org")
	require.NoError(t, flags.Set("verbose", "true"))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), newFlagSet())
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
}

func TestValidateArchiveNeedsBaseURL(t *testing.T) {
	_, err := Load("", newFlagSet())
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
	assert.Contains(t, err.Error(), "base_url")
}

func TestValidateBucketNeedsCredentials(t *testing.T) {
	flags := newFlagSet()
	require.NoError(t, flags.Set("source", "bucket"))
	require.NoError(t, flags.Set("bucket-endpoint", "minio.local:9000"))

	_, err := Load("", flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_key")
}

func TestValidateUnknownSourceTypePassesThrough(t *testing.T) {
	// An unknown backend is a dependency failure at source construction,
	// not a config validation failure.
	flags := newFlagSet()
	require.NoError(t, flags.Set("source", "carrier-pigeon"))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "carrier-pigeon", cfg.Source.Type)
}

func TestValidateStateBackend(t *testing.T) {
	flags := newFlagSet()
	flags.Set("base-url", "https://archive.example.org")
	require.NoError(t, flags.Set("state-backend", "etched-stone"))

	_, err := Load("", flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state.backend")
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantRows  int
		wantColls []string
		wantErr   bool
	}{
		{
			name:      "collections only",
			args:      []string{"texts", "audio"},
			wantColls: []string{"texts", "audio"},
		},
		{
			name:      "rows then collections",
			args:      []string{"500", "texts"},
			wantRows:  500,
			wantColls: []string{"texts"},
		},
		{
			name:    "no args",
			args:    nil,
			wantErr: true,
		},
		{
			name:    "rows without collections",
			args:    []string{"500"},
			wantErr: true,
		},
		{
			name:    "zero rows",
			args:    []string{"0", "texts"},
			wantErr: true,
		},
		{
			name:    "path traversal rejected",
			args:    []string{"../etc"},
			wantErr: true,
		},
		{
			name:    "separator rejected",
			args:    []string{"a/b"},
			wantErr: true,
		},
		{
			name:      "dots and dashes allowed inside",
			args:      []string{"old-texts_v2.1"},
			wantColls: []string{"old-texts_v2.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, colls, err := ParseArgs(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, rows)
			assert.Equal(t, tt.wantColls, colls)
		})
	}
}

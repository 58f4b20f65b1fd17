package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplyledger/internal/blob"
	"supplyledger/internal/core"
	"supplyledger/pkg/domain"
)

func TestDefaultsMatchMigration(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, core.StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "supplyledger.db", cfg.Storage.SQLitePath)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
	assert.Equal(t, "us-east-1", cfg.Blob.S3.Region)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, MetricsPrometheus, cfg.Metrics.Driver)
	assert.Empty(t, cfg.Trace.File)
	assert.Equal(t, domain.MustParseAddress(DefaultDeployer), cfg.Deploy.Deployer)
	assert.Equal(t, "10000", cfg.Token.TotalSupply.String())
	assert.Equal(t, "TotalSem Token", cfg.Token.Name)
	assert.Equal(t, uint8(18), cfg.Token.Decimals)
	assert.Equal(t, "TotalSem", cfg.Token.Symbol)
}

func TestFileThenEnvironmentPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "supplyledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: archives
    path_style: true
token:
  total_supply: "500"
  decimals: 6
log:
  format: json
metrics:
  driver: expvar
trace:
  file: /var/log/supplyledger/trace.jsonl
`), 0o644))

	t.Setenv("SUPPLYLEDGER_TOKEN_SYMBOL", "SEM")
	t.Setenv("SUPPLYLEDGER_BLOB_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("SUPPLYLEDGER_LOG_LEVEL", "DEBUG")

	v := New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, core.StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, blob.DriverS3, cfg.Blob.Driver)
	assert.Equal(t, "archives", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "http://minio:9000", cfg.Blob.S3.Endpoint)
	assert.Equal(t, "500", cfg.Token.TotalSupply.String())
	assert.Equal(t, uint8(6), cfg.Token.Decimals)
	assert.Equal(t, "SEM", cfg.Token.Symbol)
	assert.Equal(t, "TotalSem Token", cfg.Token.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, MetricsExpvar, cfg.Metrics.Driver)
	assert.Equal(t, "/var/log/supplyledger/trace.jsonl", cfg.Trace.File)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("SUPPLYLEDGER_STORAGE_DRIVER", "sqlite")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("storage", "", "")
	require.NoError(t, flags.Parse([]string{"--storage", "memory"}))

	v := New()
	require.NoError(t, BindFlags(v, flags, map[string]string{KeyStorageDriver: "storage", KeyLogLevel: "absent"}))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, core.StorageMemory, cfg.Storage.Driver)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]struct {
		key, value string
		want       string
	}{
		"unknown storage":  {KeyStorageDriver, "etcd", "unknown storage.driver"},
		"postgres no dsn":  {KeyStorageDriver, "postgres", "storage.postgres_dsn is required"},
		"unknown blob":     {KeyBlobDriver, "ftp", "unknown blob.driver"},
		"s3 no bucket":     {KeyBlobDriver, "s3", "blob.s3.bucket is required"},
		"bad format":       {KeyLogFormat, "xml", "unknown log.format"},
		"unknown metrics":  {KeyMetricsDriver, "statsd", "unknown metrics.driver"},
		"bad deployer":     {KeyDeployDeployer, "0x12", "deploy.deployer"},
		"bad supply":       {KeyTokenTotalSupply, "-1", "token.total_supply"},
		"decimals too big": {KeyTokenDecimals, "300", "token.decimals"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := New()
			v.Set(tc.key, tc.value)
			_, err := Load(v)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestReadFileErrors(t *testing.T) {
	assert.NoError(t, ReadFile(New(), ""))
	assert.Error(t, ReadFile(New(), filepath.Join(t.TempDir(), "absent.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("storage: [\n"), 0o644))
	assert.Error(t, ReadFile(New(), bad))
}

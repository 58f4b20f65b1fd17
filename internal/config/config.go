// Package config loads layered settings: built-in defaults, an optional YAML
// file, then SUPPLYLEDGER_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"supplyledger/internal/blob"
	"supplyledger/internal/core"
	"supplyledger/pkg/domain"
)

// EnvPrefix prefixes every environment override; "storage.driver" becomes
// SUPPLYLEDGER_STORAGE_DRIVER.
const EnvPrefix = "SUPPLYLEDGER"

// Keys.
const (
	KeyStorageDriver      = "storage.driver"
	KeyStorageSQLitePath  = "storage.sqlite_path"
	KeyStoragePostgresDSN = "storage.postgres_dsn"
	KeyBlobDriver         = "blob.driver"
	KeyBlobFSRoot         = "blob.fs_root"
	KeyBlobS3Bucket       = "blob.s3.bucket"
	KeyBlobS3Region       = "blob.s3.region"
	KeyBlobS3Endpoint     = "blob.s3.endpoint"
	KeyBlobS3PathStyle    = "blob.s3.path_style"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeyMetricsDriver      = "metrics.driver"
	KeyMetricsTextfile    = "metrics.textfile"
	KeyTraceFile          = "trace.file"
	KeyDeployManifest     = "deploy.manifest"
	KeyDeployDeployer     = "deploy.deployer"
	KeyTokenTotalSupply   = "token.total_supply"
	KeyTokenName          = "token.name"
	KeyTokenDecimals      = "token.decimals"
	KeyTokenSymbol        = "token.symbol"
)

// Metrics drivers.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

// DefaultDeployer is the account used when none is configured.
const DefaultDeployer = "0x00000000000000000000000000000000000000d1"

// Config is the resolved application configuration.
type Config struct {
	Storage core.StorageConfig
	Blob    blob.Config
	Log     LogConfig
	Metrics MetricsConfig
	Trace   TraceConfig
	Deploy  DeployConfig
	Token   core.TokenParams
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig selects the recorder and an optional file written on exit:
// node-exporter text for prometheus, a JSON object for expvar.
type MetricsConfig struct {
	Driver   string
	Textfile string
}

// TraceConfig names a file that receives one JSON line per operation span.
// Empty disables tracing.
type TraceConfig struct {
	File string
}

// DeployConfig locates the manifest and names the deploying account.
type DeployConfig struct {
	Manifest string
	Deployer domain.Address
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	token := core.DefaultTokenParams()
	v.SetDefault(KeyStorageDriver, string(core.StorageSQLite))
	v.SetDefault(KeyStorageSQLitePath, "supplyledger.db")
	v.SetDefault(KeyStoragePostgresDSN, "")
	v.SetDefault(KeyBlobDriver, string(blob.DriverFilesystem))
	v.SetDefault(KeyBlobFSRoot, "./blobdata")
	v.SetDefault(KeyBlobS3Bucket, "")
	v.SetDefault(KeyBlobS3Region, "us-east-1")
	v.SetDefault(KeyBlobS3Endpoint, "")
	v.SetDefault(KeyBlobS3PathStyle, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyMetricsDriver, MetricsPrometheus)
	v.SetDefault(KeyMetricsTextfile, "")
	v.SetDefault(KeyTraceFile, "")
	v.SetDefault(KeyDeployManifest, "supplyledger.manifest.yaml")
	v.SetDefault(KeyDeployDeployer, DefaultDeployer)
	v.SetDefault(KeyTokenTotalSupply, token.TotalSupply.String())
	v.SetDefault(KeyTokenName, token.Name)
	v.SetDefault(KeyTokenDecimals, int(token.Decimals))
	v.SetDefault(KeyTokenSymbol, token.Symbol)
}

// BindFlags lets command-line flags override file and environment values.
// Flags are looked up by key name; unknown flags are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, flag := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// ReadFile merges the YAML file at path. An empty path is a no-op; a missing
// explicit file is an error.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(strings.ToLower(v.GetString(KeyStorageDriver))),
			SQLitePath:  v.GetString(KeyStorageSQLitePath),
			PostgresDSN: v.GetString(KeyStoragePostgresDSN),
		},
		Blob: blob.Config{
			Driver: blob.Driver(strings.ToLower(v.GetString(KeyBlobDriver))),
			FSRoot: v.GetString(KeyBlobFSRoot),
			S3: blob.S3Config{
				Bucket:    v.GetString(KeyBlobS3Bucket),
				Region:    v.GetString(KeyBlobS3Region),
				Endpoint:  v.GetString(KeyBlobS3Endpoint),
				PathStyle: v.GetBool(KeyBlobS3PathStyle),
			},
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
		},
		Metrics: MetricsConfig{
			Driver:   strings.ToLower(v.GetString(KeyMetricsDriver)),
			Textfile: v.GetString(KeyMetricsTextfile),
		},
		Trace:  TraceConfig{File: v.GetString(KeyTraceFile)},
		Deploy: DeployConfig{Manifest: v.GetString(KeyDeployManifest)},
		Token: core.TokenParams{
			Name:   v.GetString(KeyTokenName),
			Symbol: v.GetString(KeyTokenSymbol),
		},
	}

	switch cfg.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return Config{}, fmt.Errorf("%s is required for the postgres driver", KeyStoragePostgresDSN)
		}
	default:
		return Config{}, fmt.Errorf("unknown %s %q", KeyStorageDriver, cfg.Storage.Driver)
	}
	switch cfg.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if cfg.Blob.S3.Bucket == "" {
			return Config{}, fmt.Errorf("%s is required for the s3 driver", KeyBlobS3Bucket)
		}
	default:
		return Config{}, fmt.Errorf("unknown %s %q", KeyBlobDriver, cfg.Blob.Driver)
	}
	switch cfg.Metrics.Driver {
	case MetricsPrometheus, MetricsExpvar:
	default:
		return Config{}, fmt.Errorf("unknown %s %q", KeyMetricsDriver, cfg.Metrics.Driver)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("unknown %s %q", KeyLogFormat, cfg.Log.Format)
	}

	deployer, err := domain.ParseAddress(v.GetString(KeyDeployDeployer))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", KeyDeployDeployer, err)
	}
	cfg.Deploy.Deployer = deployer

	supply, err := domain.ParseAmount(v.GetString(KeyTokenTotalSupply))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", KeyTokenTotalSupply, err)
	}
	cfg.Token.TotalSupply = supply
	decimals := v.GetInt(KeyTokenDecimals)
	if decimals < 0 || decimals > 255 {
		return Config{}, fmt.Errorf("%w: %s must fit in a byte, got %d", domain.ErrInvalidArgument, KeyTokenDecimals, decimals)
	}
	cfg.Token.Decimals = uint8(decimals)
	return cfg, nil
}

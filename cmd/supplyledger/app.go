package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"supplyledger/internal/archive"
	"supplyledger/internal/blob"
	"supplyledger/internal/config"
	"supplyledger/internal/core"
	"supplyledger/internal/deploy"
	"supplyledger/internal/logging"
	"supplyledger/pkg/domain"
)

// app holds what a single command invocation needs. Services and stores are
// opened lazily so commands that only read the manifest touch no database.
type app struct {
	v            *viper.Viper
	cfg          config.Config
	log          zerolog.Logger
	recs         map[deploy.Component]core.MetricsRecorder
	writeMetrics func(path string) error
	tracer       *core.JSONTraceTracer
	traceFile    *os.File
	deployer     *deploy.Deployer
	out          io.Writer
}

var components = []deploy.Component{deploy.ComponentToken, deploy.ComponentSupplyChain}

func newApp(v *viper.Viper, out, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: errOut})
	if err != nil {
		return nil, err
	}
	a := &app{
		v:    v,
		cfg:  cfg,
		log:  log,
		recs: make(map[deploy.Component]core.MetricsRecorder, len(components)),
		out:  out,
	}
	a.setupMetrics()
	if path := cfg.Trace.File; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.traceFile = f
		a.tracer = core.NewJSONTracer(f)
	}
	a.deployer, err = deploy.New(deploy.Config{
		Storage:        cfg.Storage,
		ManifestPath:   cfg.Deploy.Manifest,
		ServiceOptions: a.serviceOptions,
	})
	if err != nil {
		if a.traceFile != nil {
			_ = a.traceFile.Close()
		}
		return nil, err
	}
	return a, nil
}

// setupMetrics builds one recorder per component. Recorders of a driver share
// a registry or expvar map, so any of them can write the combined output.
func (a *app) setupMetrics() {
	switch a.cfg.Metrics.Driver {
	case config.MetricsExpvar:
		var rec *core.ExpvarMetricsRecorder
		for _, c := range components {
			rec = core.NewExpvarMetricsRecorder(core.DefaultExpvarName, string(c))
			a.recs[c] = rec
		}
		a.writeMetrics = func(path string) error { return writeFile(path, rec.WriteJSON) }
	default:
		registry := prometheus.NewRegistry()
		var rec *core.PrometheusMetricsRecorder
		for _, c := range components {
			rec = core.NewPrometheusMetricsRecorder(registry, string(c))
			a.recs[c] = rec
		}
		a.writeMetrics = rec.WriteTextfile
	}
}

func (a *app) serviceOptions(c deploy.Component) []core.ServiceOption {
	opts := []core.ServiceOption{
		core.WithLogger(logging.NewAdapter(a.log).With(string(c))),
		core.WithMetricsRecorder(a.recs[c]),
	}
	if a.tracer != nil {
		opts = append(opts, core.WithTracer(a.tracer.ForComponent(string(c))))
	}
	return opts
}

func (a *app) archiver(ctx context.Context) (*archive.Archiver, error) {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return archive.New(store), nil
}

// close writes the metrics file when configured, then releases the trace
// file and the stores.
func (a *app) close() error {
	var errs []error
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.writeMetrics(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Err(); err != nil {
			errs = append(errs, fmt.Errorf("write trace: %w", err))
		}
		if err := a.traceFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace: %w", err))
		}
	}
	if err := a.deployer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// writeFile writes through a temp file and renames it, as the Prometheus
// textfile writer does, so readers never see a partial file.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// actor resolves --from, falling back to the configured deployer.
func (a *app) actor(cmd *cobra.Command) (domain.Address, error) {
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		return a.cfg.Deploy.Deployer, nil
	}
	return domain.ParseAddress(from)
}

type appKey struct{}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

func appFrom(cmd *cobra.Command) (*app, error) {
	a, ok := cmd.Context().Value(appKey{}).(*app)
	if !ok {
		return nil, fmt.Errorf("command %s ran without application context", cmd.CommandPath())
	}
	return a, nil
}

// run adapts a handler taking the app to cobra's RunE.
func run(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := appFrom(cmd)
		if err != nil {
			return err
		}
		return fn(cmd, a, args)
	}
}

func parseAddresses(args ...string) ([]domain.Address, error) {
	out := make([]domain.Address, len(args))
	for i, s := range args {
		addr, err := domain.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

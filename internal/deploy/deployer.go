// Package deploy is the constructor boundary: it deploys the token ledger and
// the supply chain registry, each into its own storage namespace, and keeps a
// manifest of the resulting handles.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"supplyledger/internal/core"
	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/pkg/domain"
)

// Default deployment names, matching the original migration.
const (
	DefaultTokenName       = "erc20Token"
	DefaultSupplyChainName = "SupplyChain"
)

// Config wires a Deployer to storage and its manifest file.
type Config struct {
	Storage core.StorageConfig
	// ManifestPath is where handles are recorded. Empty keeps the manifest in memory.
	ManifestPath string
	// ServiceOptions returns the options for services of a component.
	ServiceOptions func(Component) []core.ServiceOption
	Now            func() time.Time
}

// Deployer deploys components and reopens them by name. Opened stores stay
// open until Close so the memory driver keeps state for the process lifetime.
type Deployer struct {
	mu       sync.Mutex
	cfg      Config
	manifest *Manifest
	stores   map[string]domain.PersistentStore
}

// New loads the manifest and returns a Deployer.
func New(cfg Config) (*Deployer, error) {
	manifest := &Manifest{Version: manifestVersion}
	if cfg.ManifestPath != "" {
		var err error
		if manifest, err = LoadManifest(cfg.ManifestPath); err != nil {
			return nil, err
		}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Deployer{cfg: cfg, manifest: manifest, stores: make(map[string]domain.PersistentStore)}, nil
}

// DeployOption adjusts a single deployment.
type DeployOption func(*deployRequest)

type deployRequest struct {
	name string
}

// WithName overrides the default deployment name.
func WithName(name string) DeployOption {
	return func(r *deployRequest) {
		if name = strings.TrimSpace(name); name != "" {
			r.name = name
		}
	}
}

// DeployToken runs the ledger constructor with params in a fresh namespace.
func (d *Deployer) DeployToken(ctx context.Context, deployer domain.Address, params core.TokenParams, opts ...DeployOption) (Handle, error) {
	return d.deploy(ctx, ComponentToken, DefaultTokenName, deployer, opts, func(store domain.PersistentStore) error {
		_, _, err := core.NewLedger(store, d.serviceOptions(ComponentToken)...).Initialize(ctx, deployer, params)
		return err
	})
}

// DeploySupplyChain runs the registry constructor in a fresh namespace.
func (d *Deployer) DeploySupplyChain(ctx context.Context, deployer domain.Address, opts ...DeployOption) (Handle, error) {
	return d.deploy(ctx, ComponentSupplyChain, DefaultSupplyChainName, deployer, opts, func(store domain.PersistentStore) error {
		_, _, err := core.NewRegistry(store, d.serviceOptions(ComponentSupplyChain)...).Initialize(ctx, deployer)
		return err
	})
}

// DeployDefaults deploys the token with params and then the supply chain.
func (d *Deployer) DeployDefaults(ctx context.Context, deployer domain.Address, params core.TokenParams) ([]Handle, error) {
	token, err := d.DeployToken(ctx, deployer, params)
	if err != nil {
		return nil, err
	}
	chain, err := d.DeploySupplyChain(ctx, deployer)
	if err != nil {
		return []Handle{token}, err
	}
	return []Handle{token, chain}, nil
}

func (d *Deployer) deploy(ctx context.Context, component Component, defaultName string, deployer domain.Address, opts []DeployOption, construct func(domain.PersistentStore) error) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	req := deployRequest{name: defaultName}
	for _, opt := range opts {
		opt(&req)
	}
	if deployer.IsZero() {
		return Handle{}, fmt.Errorf("%w: deployer cannot be the null address", domain.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.manifest.Lookup(req.name); taken {
		return Handle{}, fmt.Errorf("deployment %s: %w", req.name, domain.ErrAlreadyInitialized)
	}
	nonce := d.manifest.NonceOf(deployer)
	handle := Handle{
		Component:  component,
		Name:       req.name,
		Address:    ContractAddress(deployer, nonce),
		Deployer:   deployer,
		Nonce:      nonce,
		DeployedAt: d.cfg.Now().UTC(),
	}
	store, err := d.openLocked(handle.Namespace())
	if err != nil {
		return Handle{}, err
	}
	initializedAt, adopted, err := existingDeployment(ctx, store, component, deployer)
	if err != nil {
		return Handle{}, fmt.Errorf("deploy %s: %w", req.name, err)
	}
	if adopted {
		handle.DeployedAt = initializedAt.UTC()
	} else if err := construct(store); err != nil {
		return Handle{}, fmt.Errorf("deploy %s: %w", req.name, err)
	}
	d.manifest.Deployments = append(d.manifest.Deployments, handle)
	if d.cfg.ManifestPath != "" {
		if err := d.manifest.Save(d.cfg.ManifestPath); err != nil {
			d.manifest.Deployments = d.manifest.Deployments[:len(d.manifest.Deployments)-1]
			return Handle{}, err
		}
	}
	return handle, nil
}

// existingDeployment reports whether the namespace already holds component
// initialized by deployer, as left behind when the manifest write of an
// earlier deploy failed or the manifest was lost. Such a namespace is
// recorded again instead of constructed. Anything else already living there
// is refused.
func existingDeployment(ctx context.Context, store domain.PersistentStore, component Component, deployer domain.Address) (time.Time, bool, error) {
	var (
		found bool
		kind  Component
		owner domain.Address
		at    time.Time
	)
	err := store.View(ctx, func(v domain.TransactionView) error {
		if meta, ok := v.Token(); ok {
			found, kind, owner, at = true, ComponentToken, meta.Owner, meta.InitializedAt
		}
		if meta, ok := v.Registry(); ok {
			found, kind, owner, at = true, ComponentSupplyChain, meta.Admin, meta.InitializedAt
		}
		return nil
	})
	if err != nil || !found {
		return time.Time{}, false, err
	}
	if kind != component || owner != deployer {
		return time.Time{}, false, fmt.Errorf("namespace holds a %s deployed by %s: %w", kind, owner, domain.ErrAlreadyInitialized)
	}
	return at, true, nil
}

// Manifest returns a copy of the recorded deployments.
func (d *Deployer) Manifest() Manifest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manifest.clone()
}

// Lookup resolves a deployment by name.
func (d *Deployer) Lookup(name string) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.manifest.Lookup(name)
	if !ok {
		return Handle{}, domain.NotFoundError{Entity: "deployment", ID: name}
	}
	return h, nil
}

// Ledger reopens the token deployed under name.
func (d *Deployer) Ledger(name string) (*core.Ledger, Handle, error) {
	h, store, err := d.open(name, ComponentToken)
	if err != nil {
		return nil, Handle{}, err
	}
	return core.NewLedger(store, d.serviceOptions(ComponentToken)...), h, nil
}

// Registry reopens the supply chain deployed under name.
func (d *Deployer) Registry(name string) (*core.Registry, Handle, error) {
	h, store, err := d.open(name, ComponentSupplyChain)
	if err != nil {
		return nil, Handle{}, err
	}
	return core.NewRegistry(store, d.serviceOptions(ComponentSupplyChain)...), h, nil
}

type stateExporter interface {
	ExportState() memory.Snapshot
}

// Snapshot exports the committed state of the deployment under name.
func (d *Deployer) Snapshot(name string) (memory.Snapshot, Handle, error) {
	h, store, err := d.open(name, "")
	if err != nil {
		return memory.Snapshot{}, Handle{}, err
	}
	exporter, ok := store.(stateExporter)
	if !ok {
		return memory.Snapshot{}, Handle{}, fmt.Errorf("store %T cannot export state", store)
	}
	return exporter.ExportState(), h, nil
}

// Close releases every opened store.
func (d *Deployer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for ns, store := range d.stores {
		if err := core.CloseStore(store); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ns, err))
		}
		delete(d.stores, ns)
	}
	return errors.Join(errs...)
}

// open resolves name and returns its store. An empty component accepts any kind.
func (d *Deployer) open(name string, component Component) (Handle, domain.PersistentStore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.manifest.Lookup(name)
	if !ok {
		return Handle{}, nil, domain.NotFoundError{Entity: "deployment", ID: name}
	}
	if component != "" && h.Component != component {
		return Handle{}, nil, fmt.Errorf("%w: deployment %s is a %s, not a %s", domain.ErrInvalidArgument, name, h.Component, component)
	}
	store, err := d.openLocked(h.Namespace())
	if err != nil {
		return Handle{}, nil, err
	}
	return h, store, nil
}

func (d *Deployer) openLocked(namespace string) (domain.PersistentStore, error) {
	if store, ok := d.stores[namespace]; ok {
		return store, nil
	}
	store, err := core.OpenPersistentStore(d.cfg.Storage, namespace, nil)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", namespace, err)
	}
	d.stores[namespace] = store
	return store, nil
}

func (d *Deployer) serviceOptions(component Component) []core.ServiceOption {
	if d.cfg.ServiceOptions == nil {
		return nil
	}
	return d.cfg.ServiceOptions(component)
}

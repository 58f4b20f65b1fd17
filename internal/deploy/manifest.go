package deploy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"supplyledger/pkg/domain"
)

// Component names a deployable component kind.
type Component string

const (
	ComponentToken       Component = "token"
	ComponentSupplyChain Component = "supply_chain"
)

const manifestVersion = 1

// Handle is the stable reference to one deployed component.
type Handle struct {
	Component  Component      `yaml:"component" json:"component"`
	Name       string         `yaml:"name" json:"name"`
	Address    domain.Address `yaml:"address" json:"address"`
	Deployer   domain.Address `yaml:"deployer" json:"deployer"`
	Nonce      uint64         `yaml:"nonce" json:"nonce"`
	DeployedAt time.Time      `yaml:"deployed_at" json:"deployed_at"`
}

// Namespace is the storage namespace holding the component's state.
func (h Handle) Namespace() string { return string(h.Address) }

// Manifest lists deployments in the order they were made.
type Manifest struct {
	Version     int      `yaml:"version"`
	Deployments []Handle `yaml:"deployments"`
}

// LoadManifest reads the manifest at path. A missing file is an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{Version: manifestVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Version == 0 {
		m.Version = manifestVersion
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Save writes the manifest through a temp file and rename.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Lookup finds a deployment by name.
func (m *Manifest) Lookup(name string) (Handle, bool) {
	for _, h := range m.Deployments {
		if h.Name == name {
			return h, true
		}
	}
	return Handle{}, false
}

// NonceOf counts the deployments already made by deployer.
func (m *Manifest) NonceOf(deployer domain.Address) uint64 {
	var n uint64
	for _, h := range m.Deployments {
		if h.Deployer == deployer {
			n++
		}
	}
	return n
}

func (m *Manifest) clone() Manifest {
	out := Manifest{Version: m.Version, Deployments: make([]Handle, len(m.Deployments))}
	copy(out.Deployments, m.Deployments)
	return out
}

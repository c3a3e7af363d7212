package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blockmirror/mirrorset"
	"github.com/blockmirror/mirrorset/backend"
)

// legManifest is one leg entry in a --legs-file YAML document.
type legManifest struct {
	Device    string `yaml:"device"`
	Offset    int64  `yaml:"offset"`
	SizeBytes int64  `yaml:"size_bytes"`
}

// manifest is the on-disk shape of a --legs-file document: everything
// ParseConstructionString would otherwise take as command-line text,
// plus a size so the CLI can back each leg with an in-memory device
// for demonstration and control-plane testing.
type manifest struct {
	Name     string        `yaml:"name"`
	Policy   string        `yaml:"policy"`
	Quantum  int64         `yaml:"quantum"`
	ChunkKiB int64         `yaml:"chunk_kib"`
	Weight   int32         `yaml:"weight"`
	Legs     []legManifest `yaml:"legs"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// build constructs a MirrorSet backed by fresh in-memory legs sized
// per the manifest. mirrorctl has no persistent backend of its own —
// it exercises the control plane (construction strings, io_balance,
// io_cmd, status rendering) against throwaway memory legs rather than
// driving a real block device.
func (m *manifest) build(registry *mirrorset.Registry) (*mirrorset.MirrorSet, error) {
	cfg := mirrorset.Config{
		Name:     m.Name,
		Quantum:  m.Quantum,
		ChunkKiB: m.ChunkKiB,
		Weight:   m.Weight,
		Registry: registry,
	}

	switch m.Policy {
	case "", "round_robin", "core":
		cfg.Policy = mirrorset.PolicyRoundRobin
	case "logical_part":
		cfg.Policy = mirrorset.PolicyLogicalPartition
	case "weighted":
		cfg.Policy = mirrorset.PolicyWeighted
	default:
		return nil, mirrorset.NewError("BUILD", mirrorset.ErrCodeUnknownPolicy, "unknown policy: "+m.Policy)
	}

	for _, lm := range m.Legs {
		size := lm.SizeBytes
		if size == 0 {
			size = 64 * 1024 * 1024
		}
		cfg.Legs = append(cfg.Legs, mirrorset.LegSpec{Device: lm.Device, Offset: lm.Offset})
		cfg.Backends = append(cfg.Backends, backend.NewMemory(size))
	}

	return mirrorset.New(cfg)
}

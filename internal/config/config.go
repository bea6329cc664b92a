// Package config parses the YAML cluster-topology file that describes a
// moosecore deployment: the tick-group layout and the TCP peer list used
// to build an exchange.Collective. The shape and loading style follow the
// teacher's coordinator.Config / coordinator/internal/stage.Config.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/moose-platform/moosecore/common/go/logging"
)

// Config is the top-level cluster-topology document.
type Config struct {
	// BlockSize is the capacity of every group's inbound buffer and of each
	// per-node slot of its MPI buffer (spec §3's BlockSize). Written as a human-readable
	// size ("2MB") and stored as a plain byte count.
	BlockSize datasize.ByteSize `yaml:"block_size"`
	// Groups lists the simulation groups to register, in order; each
	// entry becomes one GroupManager.AddGroup call.
	Groups []GroupConfig `yaml:"groups"`
	// Cluster describes this process's position in the TCP collective,
	// or is left zero-valued for a single-node deployment.
	Cluster ClusterConfig `yaml:"cluster"`
	// Logging configures simcored's process-wide logger.
	Logging logging.Config `yaml:"logging"`
}

// GroupConfig describes one tick group's thread and node counts.
type GroupConfig struct {
	Threads uint32 `yaml:"threads"`
	Nodes   uint32 `yaml:"nodes"`
}

// ClusterConfig locates this process among its peers for exchange.TCPCollective.
type ClusterConfig struct {
	// NodeIndex is this process's position within Peers.
	NodeIndex int `yaml:"node_index"`
	// Peers is the index-ordered listen address of every node, including
	// this one at index NodeIndex.
	Peers []string `yaml:"peers"`
}

// Multinode reports whether Cluster names more than one peer, i.e.
// whether a TCPCollective is needed instead of exchange.Local.
func (c *Config) Multinode() bool {
	return len(c.Cluster.Peers) > 1
}

// DefaultConfig returns the single-node, single-group default.
func DefaultConfig() *Config {
	return &Config{
		BlockSize: 2 * datasize.MB,
		Groups: []GroupConfig{
			{Threads: 1, Nodes: 1},
		},
		Cluster: ClusterConfig{
			NodeIndex: 0,
			Peers:     nil,
		},
		Logging: logging.Config{
			Level: zapcore.InfoLevel,
		},
	}
}

// Load reads and parses the YAML document at path, starting from
// DefaultConfig so omitted fields keep sane values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BlockSize == 0 {
		return fmt.Errorf("block_size must be non-zero")
	}
	if len(c.Groups) == 0 {
		return fmt.Errorf("at least one group is required")
	}
	for i, g := range c.Groups {
		if g.Threads == 0 {
			return fmt.Errorf("groups[%d]: threads must be non-zero", i)
		}
		if g.Nodes == 0 {
			return fmt.Errorf("groups[%d]: nodes must be non-zero", i)
		}
	}
	if len(c.Cluster.Peers) > 0 {
		if c.Cluster.NodeIndex < 0 || c.Cluster.NodeIndex >= len(c.Cluster.Peers) {
			return fmt.Errorf("cluster.node_index %d out of range for %d peers", c.Cluster.NodeIndex, len(c.Cluster.Peers))
		}
	}
	return nil
}

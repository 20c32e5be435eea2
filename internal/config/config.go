// Package config loads the dashwallet configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klingon-exchange/dashwallet/internal/backend"
	"github.com/klingon-exchange/dashwallet/internal/chain"
	"github.com/klingon-exchange/dashwallet/pkg/logging"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// DefaultDataDir is used when no data directory is given.
const DefaultDataDir = "~/.dashwallet"

// Config holds all configuration for dashwallet.
type Config struct {
	// Network is mainnet or testnet. Aliases such as dash-test are accepted.
	Network string `yaml:"network"`

	// Node is the Dash Core RPC endpoint. An empty URL means a local node on
	// the network's default RPC port.
	Node backend.Config `yaml:"node"`

	Storage StorageConfig  `yaml:"storage"`
	Logging logging.Config `yaml:"logging"`
	API     APIConfig      `yaml:"api"`
	Wallet  WalletConfig   `yaml:"wallet"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the ledger database.
	DataDir string `yaml:"data_dir"`
}

// APIConfig holds settings for the JSON-RPC service.
type APIConfig struct {
	// ListenAddr is the host:port the service binds to.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedOrigins lists origins allowed by CORS and the WebSocket
	// upgrader. Empty allows only same-origin requests.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// WalletConfig holds spending defaults.
type WalletConfig struct {
	// MinConf is the default confirmation floor for coins to spend.
	MinConf int `yaml:"min_conf"`

	// SweepFee is the fee in duffs left to the miner by a sweep.
	SweepFee int64 `yaml:"sweep_fee"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: string(chain.Mainnet),
		Node: backend.Config{
			Timeout: 30,
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8090",
		},
		Wallet: WalletConfig{
			MinConf:  1,
			SweepFee: 1000,
		},
	}
}

// Params resolves the configured network.
func (c *Config) Params() (*chain.Params, error) {
	network, err := chain.ParseNetwork(c.Network)
	if err != nil {
		return nil, err
	}
	return chain.ForNetwork(network)
}

// NodeConfig returns the node settings with network defaults filled in.
func (c *Config) NodeConfig(params *chain.Params) *backend.Config {
	cfg := backend.DefaultConfig(params)
	if c.Node.URL != "" {
		cfg.URL = c.Node.URL
	}
	cfg.User = c.Node.User
	cfg.Pass = c.Node.Pass
	if c.Node.Timeout > 0 {
		cfg.Timeout = c.Node.Timeout
	}
	cfg.RateLimit = c.Node.RateLimit
	cfg.RateBurst = c.Node.RateBurst
	return cfg
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if _, err := chain.ParseNetwork(c.Network); err != nil {
		return err
	}
	if c.Node.Timeout < 0 {
		return fmt.Errorf("node timeout must not be negative")
	}
	if c.Wallet.MinConf < 0 {
		return fmt.Errorf("wallet min_conf must not be negative")
	}
	if c.Wallet.SweepFee < 0 {
		return fmt.Errorf("wallet sweep_fee must not be negative")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	configPath := ConfigPath(dataDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from an explicit path. Missing keys keep
// their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# dashwallet configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	// The node password may be in here
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultRPCTimeout            = 10 * time.Second
	defaultXrplTimeout           = 10 * time.Second
	defaultProofThresholdPercent = 66
	defaultMaxXrplKeys           = 8
	defaultMaxPendingPerDrain    = 100
	defaultMaxNewSigners         = 20
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *RPCConfig) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Host    string `yaml:"host"`
		Timeout string `yaml:"timeout"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Host = raw.Host
	c.Timeout = defaultRPCTimeout
	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("can't parse rpc timeout: %w", err)
		}
		c.Timeout = timeout
	}
	return nil
}

// EthConfig describes the Ethereum side used by the call oracle.
type EthConfig struct {
	RPC                *RPCConfig `yaml:"rpc"`
	ChainID            string     `yaml:"chain_id"`
	MaxBlockLookBehind uint64     `yaml:"max_block_look_behind"`
}

// XrplConfig describes the XRPL websocket endpoint used for transaction lookups.
type XrplConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c *XrplConfig) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Endpoint string `yaml:"endpoint"`
		Timeout  string `yaml:"timeout"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Endpoint = raw.Endpoint
	c.Timeout = defaultXrplTimeout
	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("can't parse xrpl timeout: %w", err)
		}
		c.Timeout = timeout
	}
	return nil
}

// BridgeConfig carries the proof and rotation parameters of the bridge state machine.
type BridgeConfig struct {
	SourceAddress         common.Address `yaml:"source_address"`
	DestinationAddress    common.Address `yaml:"destination_address"`
	ProofThresholdPercent uint32         `yaml:"proof_threshold_percent"`
	MaxXrplKeys           uint32         `yaml:"max_xrpl_keys"`
	MaxPendingPerDrain    uint32         `yaml:"max_pending_per_drain"`
	MaxNewSigners         uint32         `yaml:"max_new_signers"`
}

func (c *BridgeConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawBridgeConfig BridgeConfig
	raw := rawBridgeConfig{
		ProofThresholdPercent: defaultProofThresholdPercent,
		MaxXrplKeys:           defaultMaxXrplKeys,
		MaxPendingPerDrain:    defaultMaxPendingPerDrain,
		MaxNewSigners:         defaultMaxNewSigners,
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.ProofThresholdPercent == 0 || raw.ProofThresholdPercent > 100 {
		return fmt.Errorf("proof_threshold_percent must be in (0, 100], got %d", raw.ProofThresholdPercent)
	}
	*c = BridgeConfig(raw)
	return nil
}

// KeystoreConfig holds the validator's signing key. When omitted, the service
// runs as a passive observer that collects witnesses without voting.
type KeystoreConfig struct {
	PrivateKey string `yaml:"private_key"`
	KeyFile    string `yaml:"key_file"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Eth       *EthConfig       `yaml:"eth"`
	Xrpl      *XrplConfig      `yaml:"xrpl"`
	Bridge    *BridgeConfig    `yaml:"bridge"`
	Keystore  *KeystoreConfig  `yaml:"keystore"`
	DBConfig  *DBConfig        `yaml:"postgres"`
	Presenter *PresenterConfig `yaml:"presenter"`
	LogLevel  logrus.Level     `yaml:"log_level"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Eth       *EthConfig       `yaml:"eth"`
		Xrpl      *XrplConfig      `yaml:"xrpl"`
		Bridge    *BridgeConfig    `yaml:"bridge"`
		Keystore  *KeystoreConfig  `yaml:"keystore"`
		DBConfig  *DBConfig        `yaml:"postgres"`
		Presenter *PresenterConfig `yaml:"presenter"`
		LogLevel  string           `yaml:"log_level"`
	}{LogLevel: "info"}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	level, err := logrus.ParseLevel(raw.LogLevel)
	if err != nil {
		return fmt.Errorf("can't parse log level: %w", err)
	}
	c.Eth = raw.Eth
	c.Xrpl = raw.Xrpl
	c.Bridge = raw.Bridge
	c.Keystore = raw.Keystore
	c.DBConfig = raw.DBConfig
	c.Presenter = raw.Presenter
	c.LogLevel = level
	if c.Bridge == nil {
		c.Bridge = &BridgeConfig{
			ProofThresholdPercent: defaultProofThresholdPercent,
			MaxXrplKeys:           defaultMaxXrplKeys,
			MaxPendingPerDrain:    defaultMaxPendingPerDrain,
			MaxNewSigners:         defaultMaxNewSigners,
		}
	}
	return nil
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, fmt.Errorf("can't read config: %w", err)
	}
	return cfg, nil
}

// ReadConfigWithEnv expands ${VAR} references from the environment before parsing.
func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

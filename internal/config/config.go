// Package config loads wyvernd settings from a YAML file and WYVERN_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type ExchangeConfig struct {
	ChainID            uint64 `mapstructure:"chain_id"`
	PersonalSignPrefix string `mapstructure:"personal_sign_prefix"`
}

type RegistryConfig struct {
	GrantDelay time.Duration `mapstructure:"grant_delay"`
}

// AccountsConfig names the deployer, which owns the registry, and the operator,
// which submits matches received over the API.
type AccountsConfig struct {
	Deployer string `mapstructure:"deployer"`
	Operator string `mapstructure:"operator"`
}

// JournalConfig locates the event journal. The ledger lives only as long as
// the process, so the default journal does too; a file path keeps history
// across restarts, and each run's events carry that run's tx hashes.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Config struct {
	ServiceName string         `mapstructure:"service_name"`
	Env         string         `mapstructure:"env"`
	LogLevel    string         `mapstructure:"log_level"`
	MetricsPath string         `mapstructure:"metrics_path"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Exchange    ExchangeConfig `mapstructure:"exchange"`
	Registry    RegistryConfig `mapstructure:"registry"`
	Accounts    AccountsConfig `mapstructure:"accounts"`
	Journal     JournalConfig  `mapstructure:"journal"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
}

// DeployerAddress returns the parsed deployer account
func (c *Config) DeployerAddress() common.Address {
	return common.HexToAddress(c.Accounts.Deployer)
}

// OperatorAddress returns the parsed operator account
func (c *Config) OperatorAddress() common.Address {
	return common.HexToAddress(c.Accounts.Operator)
}

// Load reads path (default config.yaml) when present, then overlays WYVERN_ env vars
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WYVERN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitCSV(cfg.Kafka.Brokers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Exchange.ChainID == 0 {
		return fmt.Errorf("exchange.chain_id must be positive")
	}
	if c.Registry.GrantDelay < 0 {
		return fmt.Errorf("registry.grant_delay must be non-negative")
	}
	if !common.IsHexAddress(c.Accounts.Deployer) {
		return fmt.Errorf("accounts.deployer must be a hex address")
	}
	if !common.IsHexAddress(c.Accounts.Operator) {
		return fmt.Errorf("accounts.operator must be a hex address")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr required")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			return fmt.Errorf("kafka topic required")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "wyvernd")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("http.addr", "0.0.0.0:8080")
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("exchange.chain_id", 50)
	v.SetDefault("exchange.personal_sign_prefix", "\x19Ethereum Signed Message:\n")
	v.SetDefault("registry.grant_delay", "336h")
	v.SetDefault("accounts.deployer", "0x0000000000000000000000000000000000d0d0d0")
	v.SetDefault("accounts.operator", "0x00000000000000000000000000000000000a0a0a")
	v.SetDefault("journal.path", ":memory:")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "wyvern.events")
}

func splitCSV(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// LogLevelDebug sets the log level to debug
	LogLevelDebug = "debug"
	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"
	// LogLevelError sets the log level to error
	LogLevelError = "error"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
var (
	DefaultBridgeDir  = ".tonbridge"
	defaultConfigDir  = "config"
	defaultDataDir    = "data"
	defaultConfigName = "config.toml"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigName)
)

// Config defines the top level configuration of the bridge tooling.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	Light           *LightConfig           `mapstructure:"light"`
	Networks        []*NetworkConfig       `mapstructure:"networks"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration with the networks the
// bridge was deployed on.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Light:           DefaultLightConfig(),
		Networks:        DefaultNetworks(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Light:           TestLightConfig(),
		Networks:        DefaultNetworks(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Light.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [light] section: %w", err)
	}
	names := make(map[string]bool, len(cfg.Networks))
	for i, n := range cfg.Networks {
		if err := n.ValidateBasic(); err != nil {
			return fmt.Errorf("error in [[networks]] #%d: %w", i, err)
		}
		if names[n.Name] {
			return fmt.Errorf("duplicate network %q", n.Name)
		}
		names[n.Name] = true
	}
	if _, err := cfg.Network(cfg.Light.Network); err != nil {
		return fmt.Errorf("error in [light] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

// Network returns the network with the given name.
func (cfg *Config) Network(name string) (*NetworkConfig, error) {
	for _, n := range cfg.Networks {
		if n.Name == name {
			return n, nil
		}
	}
	return nil, fmt.Errorf("unknown network %q", name)
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration
type BaseConfig struct { //nolint: maligned
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`
}

// DefaultBaseConfig returns a default base configuration
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  LogLevelInfo,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	cfg.LogLevel = LogLevelDebug
	return cfg
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	switch cfg.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelError:
	default:
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	if cfg.DBBackend == "" {
		return errors.New("db-backend can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// LightConfig

// LightConfig defines the configuration of the light client glue.
type LightConfig struct {
	// Name of the network from [[networks]] to follow
	Network string `mapstructure:"network"`

	// Seqno of the key block the light client contract was deployed with.
	// Used only when the trusted store is empty.
	GenesisSeqno uint32 `mapstructure:"genesis-seqno"`

	// Id of the deployed light client instance
	StateID uint32 `mapstructure:"state-id"`

	// Timeout of a single request to the provider
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// Maximum number of key blocks a single sync walks back
	MaxSyncSteps int `mapstructure:"max-sync-steps"`

	// Number of trusted states kept in the store, 0 keeps them all
	PruningSize uint16 `mapstructure:"pruning-size"`
}

// DefaultLightConfig returns a default configuration for the light client.
func DefaultLightConfig() *LightConfig {
	return &LightConfig{
		Network:        "testnet",
		RequestTimeout: 30 * time.Second,
		MaxSyncSteps:   100,
		PruningSize:    1000,
	}
}

// TestLightConfig returns a configuration for testing the light client.
func TestLightConfig() *LightConfig {
	cfg := DefaultLightConfig()
	cfg.RequestTimeout = time.Second
	cfg.MaxSyncSteps = 10
	cfg.PruningSize = 10
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *LightConfig) ValidateBasic() error {
	if cfg.Network == "" {
		return errors.New("network can't be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("request-timeout must be positive")
	}
	if cfg.MaxSyncSteps <= 0 {
		return errors.New("max-sync-steps must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// NetworkConfig

// NetworkConfig describes a TON network and how to reach it.
type NetworkConfig struct {
	Name string `mapstructure:"name"`

	// Global id of the network (-239 mainnet, -3 testnet)
	NetworkID int32 `mapstructure:"network-id"`

	// toncenter compatible JSON-RPC endpoint
	HTTPAPIEndpoint string `mapstructure:"http-api-endpoint"`
	HTTPAPIKey      string `mapstructure:"http-api-key"`

	// URL of the global config; liteservers below are used when empty
	GlobalConfigURL string `mapstructure:"global-config-url"`

	Liteservers []*LiteserverConfig `mapstructure:"liteservers"`
}

// ValidateBasic performs basic validation.
func (cfg *NetworkConfig) ValidateBasic() error {
	if cfg.Name == "" {
		return errors.New("name can't be empty")
	}
	if cfg.HTTPAPIEndpoint == "" && cfg.GlobalConfigURL == "" && len(cfg.Liteservers) == 0 {
		return fmt.Errorf("network %q has no endpoint", cfg.Name)
	}
	for i, ls := range cfg.Liteservers {
		if err := ls.ValidateBasic(); err != nil {
			return fmt.Errorf("liteserver #%d: %w", i, err)
		}
	}
	return nil
}

// LiteserverConfig is a liteserver entry of a global config.
type LiteserverConfig struct {
	// IPv4 address packed into a signed 32-bit integer
	IP   int32  `mapstructure:"ip"`
	Port uint16 `mapstructure:"port"`
	// Base64 ed25519 public key
	Key string `mapstructure:"key"`
}

// Addr returns host:port of the liteserver.
func (cfg *LiteserverConfig) Addr() string {
	ip := uint32(cfg.IP)
	host := net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).String()
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// ValidateBasic performs basic validation.
func (cfg *LiteserverConfig) ValidateBasic() error {
	if cfg.Port == 0 {
		return errors.New("port can't be zero")
	}
	key, err := base64.StdEncoding.DecodeString(cfg.Key)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("key has %d bytes, expected 32", len(key))
	}
	return nil
}

// DefaultNetworks returns the testnet and fastnet the bridge runs between.
func DefaultNetworks() []*NetworkConfig {
	return []*NetworkConfig{
		{
			Name:            "testnet",
			NetworkID:       -3,
			HTTPAPIEndpoint: "https://testnet.toncenter.com/api/v2/jsonRPC",
			GlobalConfigURL: "https://ton-blockchain.github.io/testnet-global.config.json",
			Liteservers: []*LiteserverConfig{
				{IP: 822907680, Port: 27842, Key: "sU7QavX2F964iI9oToP9gffQpCQIoOLppeqL/pdPvpM="},
				{IP: -1468571697, Port: 27787, Key: "Y/QVf6G5VDiKTZOKitbFVm067WsuocTN8Vg036A4zGk="},
				{IP: 1844203537, Port: 37537, Key: "K1F7zEe0ETf+SwkefLS56hJE8x42sjCVsBJJuaY7nEA="},
			},
		},
		{
			Name:            "fastnet",
			NetworkID:       -217,
			HTTPAPIEndpoint: "http://109.236.91.95:8081/jsonRPC",
			Liteservers: []*LiteserverConfig{
				{IP: 1482896250, Port: 22603, Key: "M6z0tzBLejE9LSAEQiLNZ4iC+u9hGv7q0gc6m0Io2rk="},
			},
		},
	}
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "tonbridge",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus-listen-addr can't be empty when prometheus is on")
	}
	if cfg.Namespace == "" {
		return errors.New("namespace can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

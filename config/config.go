package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultTradeLayerDir = ".tradelayer"
	defaultConfigDir     = "config"
	defaultDataDir       = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisFileName = "genesis.toml"
	defaultBlocksFileName  = "blocks.jsonl"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisFilePath = filepath.Join(defaultConfigDir, defaultGenesisFileName)
	defaultBlocksFilePath  = filepath.Join(defaultDataDir, defaultBlocksFileName)
)

// Config defines the top level configuration for a TradeLayer node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Chain           *ChainConfig           `mapstructure:"chain"`
	Storage         *StorageConfig         `mapstructure:"storage"`
	TxIndex         *TxIndexConfig         `mapstructure:"tx-index"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a TradeLayer node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Chain:           DefaultChainConfig(),
		Storage:         DefaultStorageConfig(),
		TxIndex:         DefaultTxIndexConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Chain:           TestChainConfig(),
		Storage:         DefaultStorageConfig(),
		TxIndex:         TestTxIndexConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Chain.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Chain.ValidateBasic(); err != nil {
		return pkgerrors.Wrap(err, "error in [chain] section")
	}
	if err := cfg.TxIndex.ValidateBasic(); err != nil {
		return pkgerrors.Wrap(err, "error in [tx-index] section")
	}
	return pkgerrors.Wrap(
		cfg.Instrumentation.ValidateBasic(),
		"error in [instrumentation] section",
	)
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a TradeLayer node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb
	// * goleveldb (github.com/syndtr/goleveldb - most popular implementation)
	//   - pure go
	//   - stable
	// * memdb keeps everything in memory and is meant for tests
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Path to the TOML file containing the protocol genesis parameters
	Genesis string `mapstructure:"genesis-file"`
}

// DefaultBaseConfig returns a default base configuration for a TradeLayer node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Genesis:   defaultGenesisFilePath,
		Moniker:   defaultMoniker,
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a TradeLayer node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// GenesisFile returns the full path to the genesis.toml file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
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
	case "debug", "info", "error", "none":
	default:
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	return nil
}

// DefaultLogLevel is the log level a fresh node starts with.
const DefaultLogLevel = "info"

//-----------------------------------------------------------------------------
// ChainConfig

// ChainConfig defines how the node follows the underlying chain.
type ChainConfig struct {
	RootDir string `mapstructure:"home"`

	// Path to the JSON-lines file the chain adapter appends connected
	// blocks to.
	BlocksFile string `mapstructure:"blocks-file"`

	// How often to look for new blocks once caught up.
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// Upper bound of the backoff between retries of a failing block source.
	RetryMaxInterval time.Duration `mapstructure:"retry-max-interval"`

	// Give up and stop the node when the block source keeps failing for this
	// long. 0 retries forever.
	RetryMaxElapsed time.Duration `mapstructure:"retry-max-elapsed"`
}

// DefaultChainConfig returns a default configuration for the chain follower.
func DefaultChainConfig() *ChainConfig {
	return &ChainConfig{
		BlocksFile:       defaultBlocksFilePath,
		PollInterval:     2 * time.Second,
		RetryMaxInterval: 30 * time.Second,
		RetryMaxElapsed:  0,
	}
}

// TestChainConfig returns a configuration for tests.
func TestChainConfig() *ChainConfig {
	cfg := DefaultChainConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.RetryMaxInterval = 50 * time.Millisecond
	return cfg
}

// BlocksFilePath returns the full path to the blocks file.
func (cfg *ChainConfig) BlocksFilePath() string {
	return rootify(cfg.BlocksFile, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ChainConfig) ValidateBasic() error {
	if cfg.BlocksFile == "" {
		return errors.New("blocks-file can't be empty")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("poll-interval must be positive")
	}
	if cfg.RetryMaxInterval <= 0 {
		return errors.New("retry-max-interval must be positive")
	}
	if cfg.RetryMaxElapsed < 0 {
		return errors.New("retry-max-elapsed can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// StorageConfig

// StorageConfig defines how state is written to disk.
type StorageConfig struct {
	// Fsync every committed block. Turning this off speeds up replays at
	// the cost of replaying the last blocks after a crash.
	SyncWrites bool `mapstructure:"sync-writes"`
}

// DefaultStorageConfig returns the default storage configuration.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{SyncWrites: true}
}

//-----------------------------------------------------------------------------
// TxIndexConfig

// TxIndexConfig defines the configuration for the transaction indexer.
type TxIndexConfig struct {
	// The backend database list to back the indexer.
	// If list contains `null`, meaning no indexer service will be used.
	//
	// Options:
	//   1) "null" (default) - no indexer services.
	//   2) "kv" - a simple indexer backed by key-value storage (see DBBackend)
	//   3) "psql" - the indexer services backed by PostgreSQL.
	Indexer []string `mapstructure:"indexer"`

	// The PostgreSQL connection configuration, the connection format:
	// postgresql://<user>:<password>@<host>:<port>/<db>?<opts>
	PsqlConn string `mapstructure:"psql-conn"`
}

// DefaultTxIndexConfig returns a default configuration for the transaction indexer.
func DefaultTxIndexConfig() *TxIndexConfig {
	return &TxIndexConfig{Indexer: []string{"kv"}}
}

// TestTxIndexConfig returns a default configuration for the transaction indexer.
func TestTxIndexConfig() *TxIndexConfig {
	return &TxIndexConfig{Indexer: []string{"kv"}}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *TxIndexConfig) ValidateBasic() error {
	seen := make(map[string]bool, len(cfg.Indexer))
	for _, name := range cfg.Indexer {
		name = strings.ToLower(name)
		switch name {
		case "null", "kv", "psql":
		default:
			return fmt.Errorf("unsupported indexer %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicated indexer %q", name)
		}
		seen[name] = true
	}
	if seen["psql"] && cfg.PsqlConn == "" {
		return errors.New("psql-conn is required by the psql indexer")
	}
	return nil
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

	// Maximum number of simultaneous connections.
	// If you want to accept a larger number than the default, make sure
	// you increase your OS limits.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max-open-connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MaxOpenConnections:   3,
		Namespace:            "tradelayer",
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
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max-open-connections can't be negative")
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

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If runtime
// fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}

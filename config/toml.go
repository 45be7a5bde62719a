package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/creachadair/atomicfile"

	tmos "github.com/tradelayer/tradelayer/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var (
	configTemplate  *template.Template
	genesisTemplate *template.Template
)

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
	if genesisTemplate, err = template.New("genesisFileTemplate").Parse(defaultGenesisTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/tradelayerd/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all. The file is replaced atomically.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return writeFile(path, buffer.Bytes(), 0644)
}

// GenesisValues are the chain specific entries of a new genesis file.
type GenesisValues struct {
	ChainID       string
	GenesisHeight int64
	Admin         string
}

// WriteGenesisFile renders a genesis with the default protocol parameters
// to path. The file is replaced atomically.
func WriteGenesisFile(path string, vals GenesisValues) error {
	var buffer bytes.Buffer
	if err := genesisTemplate.Execute(&buffer, vals); err != nil {
		return err
	}
	return writeFile(path, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/tradelayer/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.tradelayer" by default, but could be changed via $TLHOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb
db-backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db-dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging: debug | info | error | none
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

# Path to the TOML file containing the protocol genesis parameters
genesis-file = "{{ js .BaseConfig.Genesis }}"

#######################################################################
###                    Chain Follower Options                       ###
#######################################################################
[chain]

# JSON-lines file the chain adapter appends connected blocks to
blocks-file = "{{ js .Chain.BlocksFile }}"

# How often to look for new blocks once caught up
poll-interval = "{{ .Chain.PollInterval }}"

# Upper bound of the backoff between retries of a failing block source
retry-max-interval = "{{ .Chain.RetryMaxInterval }}"

# Stop the node when the block source keeps failing for this long.
# 0 retries forever.
retry-max-elapsed = "{{ .Chain.RetryMaxElapsed }}"

#######################################################################
###                       Storage Options                           ###
#######################################################################
[storage]

# Fsync every committed block
sync-writes = {{ .Storage.SyncWrites }}

#######################################################
###   Transaction Indexer Configuration Options     ###
#######################################################
[tx-index]

# The backend database list to back the indexer.
# If list contains "null", meaning no indexer service will be used.
#
# Options:
#   1) "null"
#   2) "kv" (default) - the simplest possible indexer, backed by key-value storage.
#   3) "psql" - the indexer services backed by PostgreSQL.
indexer = [{{ range $i, $e := .TxIndex.Indexer }}{{if $i}}, {{end}}{{ printf "%q" $e}}{{end}}]

# The PostgreSQL connection configuration, the connection format:
#   postgresql://<user>:<password>@<host>:<port>/<db>?<opts>
psql-conn = "{{ .TxIndex.PsqlConn }}"

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections.
# 0 - unlimited.
max-open-connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

const defaultGenesisTemplate = `# Consensus parameters of the protocol. Every node of a chain must
# start from the same file.
chain_id = "{{ .ChainID }}"
genesis_height = {{ .GenesisHeight }}

# Signs feature activations and deactivations
admin = "{{ .Admin }}"

# Number of per-height snapshots kept for reorganizations
max_reorg_depth = 100

# Features active from the first block. The others are activated by
# the admin.
active_features = ["dex", "metadex", "vesting"]

[fees]
send_all = "0"
metadex_taker = "0.0005"
contract_taker = "0.0001"
contract_maker_rebate = "0.00005"

[contracts]
maintenance_ratio = "0.5"
max_leverage = 10

[vesting]
pool = "1500000"
cliff_blocks = 20

[[vesting.steps]]
volume = "200"
fraction = "0.075"

[[vesting.steps]]
volume = "400"
fraction = "0.1505"

[node_reward]
base = "1"
decay_start = 100000
decay_interval = 100000
decay_factor = "0.5"
tail = "0.01"
winners = 1

[channels]
lifetime = 1000
withdrawal_delay = 10
`

/****** these are for test settings ***********/

// ResetTestRoot creates a fresh home directory holding the default config
// file and a test genesis.
func ResetTestRoot(dir, testName string) (*Config, error) {
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s_", testName))
	if err != nil {
		return nil, err
	}
	EnsureRoot(rootDir)

	if err := writeDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}

	conf := TestConfig().SetRoot(rootDir)
	if !tmos.FileExists(conf.GenesisFile()) {
		if err := writeFile(conf.GenesisFile(), []byte(TestGenesis), 0644); err != nil {
			return nil, err
		}
	}
	conf.Instrumentation.Namespace = testName
	return conf, nil
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if _, err := atomicfile.WriteAll(filePath, bytes.NewReader(contents), mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// TestGenesis is a genesis with every feature active from its first block.
const TestGenesis = `chain_id = "tradelayer-test"
genesis_height = 1
admin = "admin"
max_reorg_depth = 10
active_features = ["dex", "metadex", "contracts", "oracles", "channels", "instant_trade", "vesting", "node_reward", "kyc"]

[fees]
send_all = "0"
metadex_taker = "0.0005"
contract_taker = "0.0001"
contract_maker_rebate = "0.00005"

[contracts]
maintenance_ratio = "0.5"
max_leverage = 10

[vesting]
admin = "vesting-admin"
pool = "1500000"
cliff_blocks = 10

[[vesting.steps]]
volume = "1000"
fraction = "0.075"

[[vesting.steps]]
volume = "10000"
fraction = "0.5"

[node_reward]
base = "1"
decay_start = 1000
decay_interval = 1000
decay_factor = "0.5"
tail = "0.01"
winners = 1

[channels]
lifetime = 1000
withdrawal_delay = 10
`

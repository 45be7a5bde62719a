package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/libs/cli"
	"github.com/tradelayer/tradelayer/libs/log"
)

// ParseConfig retrieves the default environment configuration,
// sets up the TradeLayer root and ensures that the root exists
func ParseConfig(conf *config.Config) (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point for the
// TradeLayer node.
func RootCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tradelayerd",
		Short:         "TradeLayer protocol node following a UTXO chain",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipConfig(cmd) {
				return nil
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			config.EnsureRoot(conf.RootDir)
			return log.OverrideWithNewLogger(logger, conf.LogFormat, conf.LogLevel)
		},
	}
	cmd.PersistentFlags().String("log-level", conf.LogLevel, "log level")
	return cli.PrepareBaseCmd(cmd, "TL", os.ExpandEnv(filepath.Join("$HOME", config.DefaultTradeLayerDir)))
}

// annotationOffline marks commands that run without a home directory.
const annotationOffline = "offline"

func skipConfig(cmd *cobra.Command) bool {
	return cmd == VersionCmd || cmd.Annotations[annotationOffline] == "true"
}

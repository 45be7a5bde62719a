package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	cmd "github.com/tradelayer/tradelayer/cmd/tradelayerd/commands"
	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/libs/cli"
	"github.com/tradelayer/tradelayer/libs/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conf := config.DefaultConfig()
	logger := log.MustNewDefaultLogger(conf.LogFormat, conf.LogLevel)

	rcmd := cmd.RootCommand(conf, logger)
	rcmd.AddCommand(
		cmd.MakeInitCommand(conf, logger),
		cmd.NewRunNodeCmd(conf, logger),
		cmd.MakeReplayCommand(conf, logger),
		cmd.MakeRollbackStateCommand(conf),
		cmd.MakeHashCommand(conf),
		cmd.MakeBalanceCommand(conf),
		cmd.MakePayloadCommand(conf),
		cmd.VersionCmd,
	)

	if err := rcmd.ExecuteContext(ctx); err != nil {
		if viper.GetBool(cli.TraceFlag) {
			fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"

	"github.com/tonred/ton-trustless-bridge/cmd/tonbridge/commands"
	"github.com/tonred/ton-trustless-bridge/config"
	"github.com/tonred/ton-trustless-bridge/libs/cli"
	"github.com/tonred/ton-trustless-bridge/libs/log"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := config.DefaultConfig()

	logger, err := log.NewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)
	if err != nil {
		panic(err)
	}

	rcmd := commands.RootCommand(conf, logger)
	rcmd.AddCommand(
		commands.MakeInitCommand(conf, logger),
		commands.MakeStateCommand(conf),
		commands.MakeSyncCommand(conf, logger),
		commands.MakeProveTxCommand(conf, logger),
		commands.MakeCheckBlockCommand(conf, logger),
		commands.MakePrepareBlockCommand(),
		commands.MakePrepareKeyBlockCommand(),
		commands.MakePrepareAccountCommand(),
		commands.MakeValidatorsCommand(),
		commands.VersionCmd,
	)

	if err := cli.RunWithTrace(ctx, rcmd); err != nil {
		os.Exit(1)
	}
}

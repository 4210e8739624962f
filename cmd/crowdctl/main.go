package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const programName = "crowdctl"

var globalFlags = struct {
	output string
	debug  bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Operate crowdfunding campaigns on the TON registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&globalFlags.output, "output", "o", "text", "output format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(
		resolveCommand(),
		viewCommand(),
		ledgerCommand(),
		listCommand(),
		receiptCommand(),
		receiptsCommand(),
		createCommand(),
		donateCommand(),
		finalizeCommand(),
		forceSucceedCommand(),
		withdrawCommand(),
		refundCommand(),
		cancelCommand(),
		archiveCommand(true),
		archiveCommand(false),
		nameCommand(),
		tokenCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

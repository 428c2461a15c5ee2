package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rcpanel/app"
	"github.com/kilianp07/rcpanel/core/command"
)

var sendCmd = &cobra.Command{
	Use:       "send <command>",
	Short:     "Connect, send one command and print the outcome",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"adelante", "atras", "izquierda", "derecha", "stop"},
	RunE:      sendCommand,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func sendCommand(cmd *cobra.Command, args []string) error {
	c, err := command.Parse(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, cfgPath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	panel, err := app.New(env.cfg, env.sink)
	if err != nil {
		return err
	}
	defer panel.Close()

	if err := panel.Mount(ctx); err != nil {
		return err
	}
	out := panel.Dispatch(c)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", out.Kind, panel.Status().Text)
	if !out.OK() {
		return out.Err
	}
	return nil
}

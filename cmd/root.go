package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kilianp07/rcpanel/app"
	"github.com/kilianp07/rcpanel/infra/logger"
	"github.com/kilianp07/rcpanel/ui"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "rcpanel",
	Short:        "Remote control panel for an RC car over MQTT",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, cfgPath, true)
	if err != nil {
		return err
	}
	defer env.Close()

	panel, err := app.New(env.cfg, env.sink)
	if err != nil {
		return err
	}
	defer func() {
		if err := panel.Close(); err != nil {
			logger.New("main").Errorf("panel close: %v", err)
		}
	}()

	ticks, updates := panel.Ticks(), panel.StatusUpdates()
	if err := panel.Mount(ctx); err != nil {
		logger.New("main").Warnf("mount: %v", err)
	}

	p := tea.NewProgram(ui.New(ctx, panel, ticks, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal panel: %w", err)
	}
	return nil
}

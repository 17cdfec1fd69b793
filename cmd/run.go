package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schovi/nodemux/internal/app"
	"github.com/schovi/nodemux/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start all nodes and open the console",
	Long: `Start every configured node and drive them from stdin.

Plain lines go to the focused node; a line starting with "h2# " goes to h2.
While a node runs a command, lines are passed through to it byte by byte.
Lines starting with ':' are console commands, see :help.

Ctrl+C interrupts the focused node. :quit interrupts everything and exits.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runSelectFlag     string
	runCompletionFlag string
	runMetricsFlag    string
)

func init() {
	runCmd.Flags().StringVar(&runSelectFlag, "select", "", "Group shown first")
	runCmd.Flags().StringVar(&runCompletionFlag, "completion", "", "Completion detection: prompt or sentinel")
	runCmd.Flags().StringVar(&runMetricsFlag, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := applyRunFlags(cfg); err != nil {
		return err
	}

	a, err := app.Start(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.RunConsole(cmd.Context(), int(os.Stdin.Fd()), os.Stdout)
}

func applyRunFlags(c *config.Config) error {
	if runSelectFlag != "" {
		c.Select = runSelectFlag
	}
	if runCompletionFlag != "" {
		c.Completion = runCompletionFlag
	}
	if runMetricsFlag != "" {
		c.MetricsAddr = runMetricsFlag
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

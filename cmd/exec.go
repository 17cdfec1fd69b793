package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/schovi/nodemux/internal/app"
	"github.com/schovi/nodemux/internal/session"
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run a command on nodes and print each result",
	Long: `Start the nodes, run a command on each selected node and wait until
every node has printed its prompt again.

Nodes are selected with --on, by group or node name; default is every node.
A node still running at --timeout is interrupted and reported as failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

var (
	execOnFlag      []string
	execTimeoutFlag int
	execHeadFlag    int
	execTailFlag    int
	execJsonFlag    bool
)

func init() {
	execCmd.Flags().StringSliceVar(&execOnFlag, "on", nil, "Groups or nodes to run on (repeatable)")
	execCmd.Flags().IntVar(&execTimeoutFlag, "timeout", 10, "Max wait per node in seconds (0 = no limit)")
	execCmd.Flags().IntVar(&execHeadFlag, "head", 0, "Print only the first N lines per node")
	execCmd.Flags().IntVar(&execTailFlag, "tail", 0, "Print only the last N lines per node")
	execCmd.Flags().BoolVar(&execJsonFlag, "json", false, "Output as JSON")
}

type execResult struct {
	Node   string `json:"node"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

func runExec(cmd *cobra.Command, args []string) error {
	if execHeadFlag > 0 && execTailFlag > 0 {
		return fmt.Errorf("--head and --tail are mutually exclusive")
	}
	input := strings.Join(args, " ")

	a, err := app.Start(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Sessions(execOnFlag)
	if err != nil {
		return err
	}

	timeout := time.Duration(execTimeoutFlag) * time.Second
	results := a.Exec(cmd.Context(), sessions, input, timeout)

	var failed []string
	out := make([]execResult, 0, len(results))
	for _, r := range results {
		res := execResult{
			Node:   r.Node,
			Output: session.LimitLines(r.Output, execHeadFlag, execTailFlag),
		}
		if r.Err != nil {
			res.Error = r.Err.Error()
			failed = append(failed, r.Node)
		}
		out = append(out, res)
	}

	if execJsonFlag {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Println(string(data))
	} else {
		for _, r := range out {
			fmt.Printf("== %s ==\n", r.Node)
			fmt.Print(r.Output)
			if r.Output != "" && !strings.HasSuffix(r.Output, "\n") {
				fmt.Println()
			}
			if r.Error != "" {
				fmt.Printf("error: %s\n", r.Error)
			}
		}
	}

	if len(failed) > 0 {
		return errors.New("failed on " + strings.Join(failed, ", "))
	}
	return nil
}

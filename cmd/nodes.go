package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List configured groups and nodes",
	Args:  cobra.NoArgs,
	RunE:  runNodes,
}

var nodesJsonFlag bool

func init() {
	nodesCmd.Flags().BoolVar(&nodesJsonFlag, "json", false, "Output as JSON")
}

func runNodes(cmd *cobra.Command, args []string) error {
	if nodesJsonFlag {
		data, err := json.MarshalIndent(cfg.Groups, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	for _, g := range cfg.Groups {
		fmt.Printf("%s\t%s\n", g.Name, strings.Join(g.Nodes, " "))
	}
	return nil
}

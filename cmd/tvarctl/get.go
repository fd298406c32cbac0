package main

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id> [path]",
	Short: "Read a TVar's value, or (with --embed) the value at a path within it",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 2 {
		path = args[1]
	}
	c, err := resolveClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	value, version, err := c.Get(cmd.Context(), args[0], path)
	if err != nil {
		return err
	}
	printJSON(map[string]any{"value": value, "version": version})
	return nil
}

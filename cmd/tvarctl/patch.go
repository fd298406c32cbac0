package main

import (
	"github.com/spf13/cobra"
)

var patchCmd = &cobra.Command{
	Use:   "patch <id> <path> <value>",
	Short: "Set the value at a path within a TVar",
	Args:  cobra.ExactArgs(3),
	RunE:  runPatch,
}

func runPatch(cmd *cobra.Command, args []string) error {
	value := parseJSONArg(args[2])
	c, err := resolveClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Patch(cmd.Context(), args[0], args[1], value)
}

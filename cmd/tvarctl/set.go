package main

import (
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <id> <value>",
	Short: "Replace a TVar's whole value",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	value := parseJSONArg(args[1])
	c, err := resolveClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Set(cmd.Context(), args[0], value)
}

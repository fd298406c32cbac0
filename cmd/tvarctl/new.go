package main

import (
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new <id> <value>",
	Short: "Create a TVar with an initial JSON value",
	Args:  cobra.ExactArgs(2),
	RunE:  runNew,
}

func runNew(cmd *cobra.Command, args []string) error {
	value := parseJSONArg(args[1])
	c, err := resolveClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.New(cmd.Context(), args[0], value)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haldanelabs/tvarstm"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tvarctl",
	Short: "tvarctl talks to a tvarstm Store, either over HTTP or in-process",
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "tvarserver base URL")
	rootCmd.PersistentFlags().Bool("embed", false, "open a Store in-process instead of talking to --server")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite file for --embed's store; empty for in-memory")

	rootCmd.AddCommand(newCmd, getCmd, setCmd, patchCmd)
}

// openEmbedded opens an in-process Store per --db-path, for resolveClient's --embed path.
func openEmbedded(cmd *cobra.Command) (*stm.Store, error) {
	dbPath, _ := cmd.Flags().GetString("db-path")
	var opts []stm.Option
	if dbPath != "" {
		opts = append(opts, stm.WithBackendKind(stm.BackendPersistent), stm.WithLocation(dbPath))
	}
	return stm.Open(opts...)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
	}
}

// parseJSONArg decodes a CLI argument as a JSON value, falling back to treating it as a bare
// string so `tvarctl set c 1` and `tvarctl set c '"hello"'` both work as expected.
func parseJSONArg(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

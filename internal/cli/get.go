package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Issue a GET request",
	Long: `Issue a GET request against the given URL or path. A bare path is
resolved against the active environment profile's base URL.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := clientFromFlags(cmd)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		env := client.Get(cmd.Context(), args[0], requestOptionsFromFlags(cmd)...)
		os.Exit(printEnvelope(cmd, env))
	},
}

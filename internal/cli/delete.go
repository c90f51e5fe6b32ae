package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [url]",
	Short: "Issue a DELETE request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := clientFromFlags(cmd)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		env := client.Delete(cmd.Context(), args[0], requestOptionsFromFlags(cmd)...)
		os.Exit(printEnvelope(cmd, env))
	},
}

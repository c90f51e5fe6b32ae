package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var postCmd = &cobra.Command{
	Use:   "post [url]",
	Short: "Issue a POST request",
	Long: `Issue a POST request against the given URL or path. The body comes
from --data, or from stdin when --data is "-". String bodies are sent
verbatim with an application/json content type unless a --header overrides it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := clientFromFlags(cmd)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		data, _ := cmd.Flags().GetString("data")
		var body any
		switch data {
		case "":
			body = nil
		case "-":
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reading stdin: %v\n", err)
				os.Exit(1)
			}
			body = raw
		default:
			body = data
		}

		env := client.Post(cmd.Context(), args[0], body, requestOptionsFromFlags(cmd)...)
		os.Exit(printEnvelope(cmd, env))
	},
}

func init() {
	postCmd.Flags().StringP("data", "d", "", `request body ("-" reads stdin)`)
}

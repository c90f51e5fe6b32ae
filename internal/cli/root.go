// Package cli implements the qs command, a small terminal client for the
// QuietSpace API built on the qsapi library.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	qsapi "github.com/thural/QuietSpace-Frontend-sub010"
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:     "qs",
	Short:   "Terminal client for the QuietSpace API",
	Version: qsapi.Version,
	Long: `qs issues requests against the QuietSpace API through the qsapi client,
with the same retry, caching and error-envelope semantics applications get.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringP("env", "e", "", "named environment profile (development, staging, production)")
	RootCmd.PersistentFlags().StringArrayP("header", "H", []string{}, "HTTP headers to include (repeatable)")
	RootCmd.PersistentFlags().DurationP("timeout", "t", 10*time.Second, "request timeout")
	RootCmd.PersistentFlags().IntP("retries", "r", 0, "maximum retries after the first attempt")
	RootCmd.PersistentFlags().String("token", "", "bearer token for Authorization")
	RootCmd.PersistentFlags().StringP("query", "q", "", "gjson path extracted from JSON responses")
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "print status, headers and metadata")
	RootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	RootCmd.AddCommand(getCmd)
	RootCmd.AddCommand(postCmd)
	RootCmd.AddCommand(deleteCmd)
}

// clientFromFlags assembles a qsapi client from the persistent flags.
func clientFromFlags(cmd *cobra.Command) (*qsapi.Client, error) {
	env, _ := cmd.Flags().GetString("env")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	retries, _ := cmd.Flags().GetInt("retries")
	token, _ := cmd.Flags().GetString("token")

	// Profile first so explicit flags override it.
	var opts []qsapi.Option
	if env != "" {
		opts = append(opts, qsapi.WithEnvironment(qsapi.Environment(env)))
	}
	if cmd.Flags().Changed("timeout") {
		opts = append(opts, qsapi.WithTimeout(timeout))
	}
	if cmd.Flags().Changed("retries") {
		opts = append(opts, qsapi.WithMaxRetries(retries))
	}
	if token != "" {
		opts = append(opts, qsapi.WithBearerToken(token))
	}

	client := qsapi.New(opts...)
	if err := client.ValidationError(); err != nil {
		return nil, err
	}
	return client, nil
}

// requestOptionsFromFlags converts --header flags into request options.
func requestOptionsFromFlags(cmd *cobra.Command) []qsapi.RequestOption {
	headers, _ := cmd.Flags().GetStringArray("header")

	var opts []qsapi.RequestOption
	for _, header := range headers {
		key, value, found := strings.Cut(header, ":")
		if !found {
			continue
		}
		opts = append(opts, qsapi.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}
	return opts
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	qsapi "github.com/thural/QuietSpace-Frontend-sub010"
)

// printEnvelope renders the envelope to stdout/stderr and returns the process
// exit code: 0 for success envelopes, 1 otherwise.
func printEnvelope(cmd *cobra.Command, env *qsapi.Envelope) int {
	verbose, _ := cmd.Flags().GetBool("verbose")
	query, _ := cmd.Flags().GetString("query")
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor {
		color.NoColor = true
	}

	if verbose {
		printStatusLine(env)
		printHeaders(env)
		printMetadata(env)
	}

	if !env.Success {
		printError(env.Error)
		return 1
	}

	body := env.RawBody()
	if query != "" && gjson.ValidBytes(body) {
		result := gjson.GetBytes(body, query)
		if !result.Exists() {
			fmt.Fprintf(os.Stderr, "query %q matched nothing\n", query)
			return 1
		}
		fmt.Println(result.String())
		return 0
	}

	if len(body) > 0 {
		os.Stdout.Write(body)
		if body[len(body)-1] != '\n' {
			fmt.Println()
		}
	}
	return 0
}

func printStatusLine(env *qsapi.Envelope) {
	statusColor := color.New(color.FgGreen)
	switch {
	case env.Status >= 500:
		statusColor = color.New(color.FgRed)
	case env.Status >= 400:
		statusColor = color.New(color.FgYellow)
	case env.Status >= 300:
		statusColor = color.New(color.FgCyan)
	}
	statusColor.Fprintf(os.Stderr, "%d %s\n", env.Status, env.StatusText)
}

func printHeaders(env *qsapi.Envelope) {
	keys := make([]string, 0, len(env.Headers))
	for key := range env.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	headerColor := color.New(color.FgBlue)
	for _, key := range keys {
		for _, value := range env.Headers[key] {
			headerColor.Fprintf(os.Stderr, "%s: ", key)
			fmt.Fprintln(os.Stderr, value)
		}
	}
}

func printMetadata(env *qsapi.Envelope) {
	dim := color.New(color.Faint)
	dim.Fprintf(os.Stderr, "request-id=%s duration=%s retries=%d cached=%t\n\n",
		env.Metadata.RequestID, env.Metadata.Duration, env.Metadata.RetryCount, env.Metadata.Cached)
}

func printError(apiErr *qsapi.APIError) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(os.Stderr, "%s", apiErr.Code)
	fmt.Fprintf(os.Stderr, ": %s\n", apiErr.Message)

	if len(apiErr.Details) > 0 {
		if details, err := json.MarshalIndent(apiErr.Details, "", "  "); err == nil {
			fmt.Fprintln(os.Stderr, string(details))
		}
	}
}

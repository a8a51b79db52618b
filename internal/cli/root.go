// Package cli implements retrievalctl, the operator CLI for the retrieval
// pipeline.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

// Services are the query-path dependencies the commands need.
type Services struct {
	Retrieval ports.RetrievalService
	Agencies  ports.AgencyAdvisor
}

// Opener connects to the backends lazily so that offline commands such as
// analyze work without a database.
type Opener func(ctx context.Context) (Services, func(), error)

type rootOptions struct {
	timeout    time.Duration
	jsonOutput bool
}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "retrievalctl",
		Short: "Query the consumer dispute retrieval pipeline",
		Long: `retrievalctl runs the multi-stage retrieval pipeline from the shell.

Example usage:
  retrievalctl analyze "민법 제750조는 무엇인가요?"
  retrievalctl search "세탁기 환불 사례" --source-org KCA
  retrievalctl recommend "게임 아이템 환불" --evidence`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")

	root.AddCommand(
		newSearchCommand(open, opts),
		newAnalyzeCommand(opts),
		newRecommendCommand(open, opts),
	)
	return root
}

func queryFromArgs(args []string) (string, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	return query, nil
}

func withServices(cmd *cobra.Command, open Opener, opts *rootOptions, run func(ctx context.Context, services Services) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	services, closeFn, err := open(ctx)
	if err != nil {
		return fmt.Errorf("connect backends: %w", err)
	}
	if closeFn != nil {
		defer closeFn()
	}
	return run(ctx, services)
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(payload)
}

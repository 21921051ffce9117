package cmd

import (
	"fmt"
	"io"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/spf13/cobra"

	"github.com/spiffcs/deprecator/config"
	"github.com/spiffcs/deprecator/internal/constants"
	"github.com/spiffcs/deprecator/internal/ghclient"
)

// NewCmdRateLimit creates the ratelimit command.
func NewCmdRateLimit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Check GitHub API rate limit status",
		Long:  `Display current GitHub API rate limit status including remaining quota and reset time.`,
	}
	cmd.AddCommand(NewCmdRateLimitStatus())
	return cmd
}

// NewCmdRateLimitStatus creates the ratelimit status subcommand.
func NewCmdRateLimitStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current rate limit status",
		Long:  `Display the current GitHub API rate limit status for core, search and GraphQL APIs.`,
		RunE:  runRateLimitStatus,
	}
}

func runRateLimitStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ghclient.NewClient(cmd.Context(), cfg.GetGitHubToken(), ghclient.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return err
	}

	limits, err := client.RateLimits(cmd.Context())
	if err != nil {
		return err
	}

	printRateLimits(cmd.OutOrStdout(), limits, time.Now())
	return nil
}

func printRateLimits(w io.Writer, limits *gh.RateLimits, now time.Time) {
	fmt.Fprintln(w, "GitHub API Rate Limits:")
	fmt.Fprintln(w)

	printRate(w, "Core API:  ", limits.Core, now)
	printRate(w, "Search API:", limits.Search, now)
	printRate(w, "GraphQL:   ", limits.GraphQL, now)
}

func printRate(w io.Writer, label string, rate *gh.Rate, now time.Time) {
	if rate == nil {
		return
	}
	resetIn := rate.Reset.Time.Sub(now).Round(time.Second)
	if resetIn < 0 {
		resetIn = 0
	}
	fmt.Fprintf(w, "%s %d/%d remaining (resets in %s)", label, rate.Remaining, rate.Limit, resetIn)
	if rate.Remaining < constants.RateLimitLowWatermark {
		fmt.Fprint(w, " - running low")
	}
	fmt.Fprintln(w)
}

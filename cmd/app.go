package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spiffcs/deprecator/config"
	"github.com/spiffcs/deprecator/internal/ghclient"
)

// NewCmdApp creates the app command.
func NewCmdApp() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Inspect the configured GitHub App",
		Long: `Commands that authenticate as a GitHub App using the GITHUB_APP_ID and
GITHUB_APP_KEY environment variables. GITHUB_APP_KEY holds the private key
in PEM form or the path to it.`,
	}
	cmd.AddCommand(NewCmdAppRepos())
	return cmd
}

// NewCmdAppRepos creates the app repos subcommand.
func NewCmdAppRepos() *cobra.Command {
	return &cobra.Command{
		Use:   "repos",
		Short: "List repositories the GitHub App is installed on",
		Args:  cobra.NoArgs,
		RunE:  runAppRepos,
	}
}

func runAppRepos(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	id, keyValue := cfg.GetAppCredentials()
	if keyValue == "" {
		return fmt.Errorf("GitHub App key not configured. Set the %s environment variable", config.EnvAppKey)
	}
	key, err := ghclient.LoadAppKey(keyValue)
	if err != nil {
		return err
	}

	app, err := ghclient.NewApp(id, key, ghclient.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return err
	}

	repos, err := app.Repositories(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(repos) == 0 {
		fmt.Fprintln(out, "No repositories found.")
		return nil
	}
	for _, repo := range repos {
		fmt.Fprintln(out, repo.FullName)
	}
	return nil
}

package cmd

import (
	"github.com/spf13/cobra"
)

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := NewOptions()

	rootCmd := &cobra.Command{
		Use:   "deprecator",
		Short: "Deprecate old npm package versions by rule",
		Long: `Finds the packages in a repository, applies deprecation rules to each
package's published versions, and runs npm deprecate for every version selected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeprecate(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// `deprecator` and `deprecator run` behave identically
	addRunFlags(rootCmd, opts)

	rootCmd.AddCommand(NewCmdRun(opts))
	rootCmd.AddCommand(NewCmdRules())
	rootCmd.AddCommand(NewCmdApp())
	rootCmd.AddCommand(NewCmdConfig())
	rootCmd.AddCommand(NewCmdVersion())
	rootCmd.AddCommand(NewCmdRateLimit())

	return rootCmd
}

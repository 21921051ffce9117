package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spiffcs/deprecator/internal/format"
	"github.com/spiffcs/deprecator/internal/rules"
)

// NewCmdRules creates the rules command.
func NewCmdRules() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the available deprecation rules",
		Long: `List the rules that can be passed with --rules or configured under
"rules" in the config file. Rules marked with a parameter take a number of
months, for example majorVersions=6.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printRules(cmd.OutOrStdout(), rules.DefaultCatalog())
		},
	}
}

func printRules(w io.Writer, catalog *rules.Catalog) {
	const colName = 30
	const colParam = 10

	fmt.Fprintf(w, "%s%s%s\n",
		format.PadRight("RULE", colName),
		format.PadRight("PARAMETER", colParam),
		"DESCRIPTION")
	for _, rule := range catalog.Rules() {
		param := "-"
		if rule.NeedsMonths {
			param = "months"
		}
		fmt.Fprintf(w, "%s%s%s\n",
			format.PadRight(string(rule.Name), colName),
			format.PadRight(param, colParam),
			rule.Description)
	}
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/policy-portal/app"
	"github.com/upb/policy-portal/config"
	"github.com/upb/policy-portal/internal/access"
)

func newScreensCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "screens",
		Short: "Print the effective screen permission table",
		Long: `screens prints which roles may open each screen: the built-in table,
overlaid with the file named by --file or ACCESS_SCREENS_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("ACCESS_SCREENS_FILE")
			}
			table, err := app.LoadScreens(config.AccessConfig{ScreensFile: file})
			if err != nil {
				return err
			}
			return printScreens(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML screen table overriding the built-in entries")
	return cmd
}

func printScreens(w io.Writer, table *access.ScreenTable) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCREEN\tROLES")
	for _, e := range table.Entries() {
		fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.Request)
	}
	return tw.Flush()
}

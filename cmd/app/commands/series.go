package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"FMPull/internal/domain/models"
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "List the known series",
	RunE:  runSeries,
}

var seriesJSON bool

func init() {
	rootCmd.AddCommand(seriesCmd)

	seriesCmd.Flags().BoolVar(&seriesJSON, "json", false, "print JSON instead of a table")
}

func runSeries(cmd *cobra.Command, _ []string) error {
	all := models.DefaultCatalogue().All()
	infos := make([]models.SeriesInfo, 0, len(all))
	for _, s := range all {
		infos = append(infos, models.NewSeriesInfo(s))
	}
	if seriesJSON {
		return printJSON(cmd, infos, nil)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tPERIODIC\tMANDATORY\tPREMIUM")
	for _, s := range infos {
		path := s.Path
		if len(s.Indicators) > 0 {
			path = fmt.Sprintf("%s (%d indicators)", path, len(s.Indicators))
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\n", s.Name, path, s.Periodic, s.Mandatory, s.Premium)
	}
	return w.Flush()
}

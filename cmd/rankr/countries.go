package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rankr/internal/locale"
)

// NewCountriesCmd creates the countries command.
func NewCountriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List the countries accepted by --country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCODE\tGOOGLE DOMAIN\tLANGUAGE")
			for _, c := range locale.DefaultTable().Countries() {
				marker := ""
				if c.Code == locale.DefaultCountry {
					marker = " (default)"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", c.Name, marker, c.Code, c.Domain, c.Language)
			}
			return tw.Flush()
		},
	}
}

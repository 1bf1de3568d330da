package main

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/civiclens/civiclens-go/internal/classify"
)

func newLabelsCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List the candidate issue labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			taxonomy := classify.DefaultTaxonomy()
			if file != "" {
				var err error
				if taxonomy, err = classify.LoadTaxonomy(file); err != nil {
					return err
				}
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Group", "Labels"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, g := range taxonomy.Groups {
				table.Append([]string{g.Name, strings.Join(g.Labels, ", ")})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML taxonomy file (defaults to the built-in labels)")
	return cmd
}

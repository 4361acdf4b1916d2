package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Browse and manage the public archive",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived schools by stars",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := api.Archive(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARS\tCREATED\tNAME")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", it.ID, it.Stars, it.CreatedAt.Format("2006-01-02 15:04"), it.Name)
		}
		return tw.Flush()
	},
}

var archiveStarCmd = &cobra.Command{
	Use:   "star <job-id>",
	Short: "Add a star to an archived school",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stars, err := api.Star(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stars=%d\n", stars)
		return nil
	},
}

var archiveDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its archive entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted")
		return nil
	},
}

func init() {
	archiveCmd.AddCommand(archiveListCmd, archiveStarCmd, archiveDeleteCmd)
	rootCmd.AddCommand(archiveCmd)
}

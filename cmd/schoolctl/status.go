package main

import (
	"github.com/spf13/cobra"
)

var statusPartial bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print the state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := api.Status(cmd.Context(), args[0], statusPartial)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusPartial, "partial", false, "Include the partial snapshot of a running job")
	rootCmd.AddCommand(statusCmd)
}

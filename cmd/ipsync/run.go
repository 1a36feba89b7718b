package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		dryRun bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile every configured pairing once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sync.Run(cmd.Context(), dryRun || a.Sync.DryRun())
			if err != nil {
				return err
			}
			if err := renderReport(cmd.OutOrStdout(), report, output); err != nil {
				return fmt.Errorf("rendering report: %w", err)
			}
			if report.HasFailures() {
				return errRunFailures
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute plans without mutating targets")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format (table or json)")
	return cmd
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "plan [pairing]",
		Short: "Show the changes a run would make",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				report, err := a.Sync.Run(cmd.Context(), true)
				if err != nil {
					return err
				}
				return renderReport(cmd.OutOrStdout(), report, output)
			}

			report, err := a.Sync.Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), report, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format (table or json)")
	return cmd
}

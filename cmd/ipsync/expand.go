package main

import (
	"fmt"

	"github.com/bcnelson/ipsync/internal/address"
	"github.com/spf13/cobra"
)

func newExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <spec>...",
		Short: "Print the addresses an address spec expands to",
		Long: `Print the individual addresses of literals, CIDR blocks and ranges.

Examples:
  ipsync expand 192.0.2.0/29
  ipsync expand 10.0.0.1-10.0.0.5 2001:db8::1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, spec := range args {
				inv, err := address.Expand(spec)
				if err != nil {
					return err
				}
				for _, a := range inv.Sorted() {
					fmt.Fprintln(out, a)
				}
			}
			return nil
		},
	}
}

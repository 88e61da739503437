package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vango-dev/hotshim/pkg/mangle"
)

func mangleCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "mangle <app> <module>",
		Short: "Print the registry key of a native module",
		Long: `Print the registry key a native module is published under.

The application identifier has the form "owner/name"; the module path is
dotted. The default mode rewrites only the first "-" of the name and the
first "." of the module path.

Examples:
  hotshim mangle author/my-app Native.Something
  hotshim mangle my-org/my-cool-app Native.Deep.Module --mode=full`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mangle.ParseMode(mode)
			if err != nil {
				return err
			}
			key, err := mangle.MangleWith(m, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "compat", `Mangling mode ("compat" or "full")`)

	return cmd
}

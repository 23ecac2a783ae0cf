package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unboundedsystems/adapt/internal/schema"
)

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <observer>",
		Short: "Print the GraphQL schema of an observer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newRegistry().Lookup(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), schema.Render(p.Schema().Schema))
			return err
		},
	}
}

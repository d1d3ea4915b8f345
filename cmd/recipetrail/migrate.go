package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"recipetrail/revision/store"
)

// NewMigrateCommand 创建 migrate 命令
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the engine tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := store.Migrate(ctx, rt.db); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", rt.db.GetDialectName())
				return nil
			})
		},
	}
}

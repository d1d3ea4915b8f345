package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"recipetrail/domain/recipe"
	"recipetrail/errors"
	"recipetrail/revision/store"
	"recipetrail/validation"
)

// NewProductionCommand 创建 production 命令组
func NewProductionCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "production",
		Short: "Manage production runs that enable versioned edits",
	}
	cmd.AddCommand(newProductionCreateCommand(opts))
	cmd.AddCommand(newProductionStatusCommand(opts))
	return cmd
}

func statusNames() []string {
	out := make([]string, len(recipe.ProductionStatuses))
	for i, s := range recipe.ProductionStatuses {
		out[i] = string(s)
	}
	return out
}

func newProductionCreateCommand(opts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "create <recipe-id>",
		Short: "Create a production run for a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := parseID(args[0], "recipe-id")
			if err != nil {
				return err
			}
			if err := validation.ValidateEnum(status, "status", statusNames()); err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				repo := store.NewRecipeRepository(rt.db)
				if _, err := repo.LoadImage(ctx, recipeID, false); err != nil {
					return errors.Normalize(err)
				}
				id, err := repo.CreateProduction(ctx, recipeID, recipe.ProductionStatus(status))
				if err != nil {
					return errors.Normalize(err)
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), recipe.Production{ID: id, RecipeID: recipeID, Status: recipe.ProductionStatus(status)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created production %d (%s)\n", id, status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(recipe.ProductionInProgress), "initial status")
	return cmd
}

func newProductionStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <production-id> <status>",
		Short: "Change the status of a production run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "production-id")
			if err != nil {
				return err
			}
			if err := validation.ValidateEnum(args[1], "status", statusNames()); err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				err := store.NewRecipeRepository(rt.db).UpdateProductionStatus(ctx, id, recipe.ProductionStatus(args[1]))
				if err != nil {
					return errors.Normalize(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "production %d is %s\n", id, args[1])
				return nil
			})
		},
	}
}

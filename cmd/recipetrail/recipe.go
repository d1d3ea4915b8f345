package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"recipetrail/domain/recipe"
	"recipetrail/errors"
	"recipetrail/revision/store"
)

// NewRecipeCommand 创建 recipe 命令组
func NewRecipeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "Create and inspect recipes",
	}
	cmd.AddCommand(newRecipeCreateCommand(opts))
	cmd.AddCommand(newRecipeShowCommand(opts))
	return cmd
}

func newRecipeCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		file    string
		actorID int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recipe from a JSON image (recipe, ingredients, steps, cost overrides)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var img recipe.Image
			if err := json.Unmarshal(data, &img); err != nil {
				return errors.WrapError(err, errors.ErrCodeValidation, "配方 JSON 无法解析")
			}
			if err := (recipe.Patch{recipe.FieldName: img.Recipe.Name}).Validate(); err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				id, err := store.NewRecipeRepository(rt.db).CreateRecipe(ctx, img, actorID)
				if err != nil {
					return errors.Normalize(err)
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]int64{"id": id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created recipe %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "recipe image JSON file (- for stdin)")
	cmd.Flags().Int64Var(&actorID, "actor", 0, "acting user id")
	return cmd
}

func newRecipeShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <recipe-id>",
		Short: "Print the current recipe image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "recipe-id")
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				img, err := store.NewRecipeRepository(rt.db).LoadImage(ctx, id, false)
				if err != nil {
					return errors.Normalize(err)
				}
				// 映像没有紧凑的文本形式，两种格式都输出 JSON
				return printJSON(cmd.OutOrStdout(), img)
			})
		},
	}
}

func parseID(s, name string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf(errors.ErrCodeValidation, "%s 必须为正整数: %q", name, s)
	}
	return id, nil
}

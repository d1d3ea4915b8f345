package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"recipetrail/domain/recipe"
	"recipetrail/errors"
)

// NewSubmitCommand 创建 submit 命令：提交一次配方编辑
func NewSubmitCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a recipe edit (JSON edit request) in a single transaction",
		Long: `Submit a recipe edit. The request is a JSON document with recipe_id, actor_id,
an optional patch of scalar fields, ingredient add/remove/update lists, full
replacements for oven_steps and mixing_steps, cost_overrides and, for edits made
during production, is_production with production_id and ingredient_overrides.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var req recipe.EditRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return errors.WrapError(err, errors.ErrCodeValidation, "编辑请求 JSON 无法解析")
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				coord, err := rt.coordinator(ctx)
				if err != nil {
					return err
				}
				res, err := coord.SubmitEdit(ctx, req)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), res)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "recipe %d: %d audit record(s)\n", req.RecipeID, res.AuditRecordCount)
				if res.VersionID != nil {
					fmt.Fprintf(out, "version id %d created\n", *res.VersionID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "edit request JSON file (- for stdin)")
	return cmd
}

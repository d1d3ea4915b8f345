package main

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"recipetrail/errors"
	"recipetrail/revision/audit"
	"recipetrail/revision/diff"
	"recipetrail/revision/lot"
	"recipetrail/revision/version"
	"recipetrail/validation"
)

const (
	timeLayout   = time.RFC3339
	maxAuditPage = 1000
)

// NewVersionsCommand 列出配方的版本快照
func NewVersionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <recipe-id>",
		Short: "List version snapshots of a recipe in version order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := parseID(args[0], "recipe-id")
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				snaps, err := version.NewRepository(rt.db).List(ctx, recipeID)
				if err != nil {
					return errors.Normalize(err)
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), nonNil(snaps))
				}
				rows := make([][]string, 0, len(snaps))
				for _, s := range snaps {
					rows = append(rows, []string{
						strconv.Itoa(s.VersionNumber),
						strconv.FormatInt(s.ID, 10),
						strconv.FormatInt(s.CreatedBy, 10),
						s.CreatedAt.Format(timeLayout),
					})
				}
				return printTable(cmd.OutOrStdout(), []string{"VERSION", "ID", "CREATED_BY", "CREATED_AT"}, rows)
			})
		},
	}
}

// NewAuditCommand 列出配方的审计记录
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	var (
		offset    int
		limit     int
		versionID int64
	)
	cmd := &cobra.Command{
		Use:   "audit <recipe-id>",
		Short: "List audit records of a recipe in write order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := parseID(args[0], "recipe-id")
			if err != nil {
				return err
			}
			if err := validation.Collect(
				validation.ValidateIntRange(offset, "offset", 0, math.MaxInt32),
				validation.ValidateIntRange(limit, "limit", 1, maxAuditPage),
			); err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				s := audit.NewStore(rt.db)
				var records []audit.Record
				if versionID > 0 {
					all, err := s.ListByVersion(ctx, versionID)
					if err != nil {
						return errors.Normalize(err)
					}
					for _, r := range all {
						if r.RecipeID == recipeID {
							records = append(records, r)
						}
					}
				} else {
					records, err = s.ListByRecipe(ctx, recipeID, offset, limit)
					if err != nil {
						return errors.Normalize(err)
					}
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), nonNil(records))
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					v := "-"
					if r.VersionID != nil {
						v = strconv.FormatInt(*r.VersionID, 10)
					}
					field := deref(r.FieldName)
					if field == "" {
						field = "-"
					}
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10),
						string(r.ChangeType),
						v,
						field,
						r.Description,
						r.CreatedAt.Format(timeLayout),
					})
				}
				return printTable(cmd.OutOrStdout(), []string{"ID", "TYPE", "VERSION_ID", "FIELD", "DESCRIPTION", "CREATED_AT"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")
	cmd.Flags().Int64Var(&versionID, "version-id", 0, "only records stamped with this version id")
	return cmd
}

// changeView diff.Change 的输出形式
type changeView struct {
	Kind        diff.Kind `json:"kind"`
	Field       string    `json:"field"`
	Key         string    `json:"key,omitempty"`
	Old         *string   `json:"old"`
	New         *string   `json:"new"`
	Description string    `json:"description"`
}

// compareVersions 读取两个版本快照并给出逐项差异
func compareVersions(ctx context.Context, r version.SnapshotReader, recipeID int64, from, to int) ([]changeView, error) {
	a, err := r.Get(ctx, recipeID, from)
	if err != nil {
		return nil, errors.Normalize(err)
	}
	b, err := r.Get(ctx, recipeID, to)
	if err != nil {
		return nil, errors.Normalize(err)
	}
	changes, err := version.Compare(a, b)
	if err != nil {
		return nil, errors.Normalize(err)
	}
	views := make([]changeView, 0, len(changes))
	for _, c := range changes {
		views = append(views, changeView{
			Kind:        c.Kind,
			Field:       c.Field,
			Key:         c.Key,
			Old:         diff.Stringify(c.Old),
			New:         diff.Stringify(c.New),
			Description: audit.Describe(c),
		})
	}
	return views, nil
}

// NewDiffVersionsCommand 比较同一配方的两个版本快照
func NewDiffVersionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff-versions <recipe-id> <from-version> <to-version>",
		Short: "Show the differences between two version snapshots",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := parseID(args[0], "recipe-id")
			if err != nil {
				return err
			}
			from, err := parseID(args[1], "from-version")
			if err != nil {
				return err
			}
			to, err := parseID(args[2], "to-version")
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				views, err := compareVersions(ctx, version.NewRepository(rt.db), recipeID, int(from), int(to))
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), views)
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{string(v.Kind), v.Field, v.Description})
				}
				return printTable(cmd.OutOrStdout(), []string{"KIND", "FIELD", "DESCRIPTION"}, rows)
			})
		},
	}
}

// NewLotsCommand 列出某 SKU 的批次引用
func NewLotsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lots <sku>",
		Short: "List lot references recorded for an ingredient SKU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				refs, err := lot.ListBySKU(ctx, rt.db, args[0])
				if err != nil {
					return errors.Normalize(err)
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), nonNil(refs))
				}
				rows := make([][]string, 0, len(refs))
				for _, r := range refs {
					rows = append(rows, []string{r.SKU, r.Lot, r.LastUsedAt.Format(timeLayout)})
				}
				return printTable(cmd.OutOrStdout(), []string{"SKU", "LOT", "LAST_USED_AT"}, rows)
			})
		},
	}
}

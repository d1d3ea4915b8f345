package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recipetrail/errors"
	"recipetrail/logging"
	"recipetrail/messaging"
	"recipetrail/revision"
	"recipetrail/revision/version"
)

// versionChanges 生产编辑生成第 n 个版本时，给出它相对第 n-1 个版本的差异
func versionChanges(ctx context.Context, r version.SnapshotReader, rev revision.Revision) ([]changeView, error) {
	if rev.VersionID == nil || rev.VersionNumber < 2 {
		return nil, nil
	}
	return compareVersions(ctx, r, rev.RecipeID, rev.VersionNumber-1, rev.VersionNumber)
}

// NewWatchCommand 订阅修订通知并逐条输出，直到收到中断信号
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print recipe revision notifications from the configured transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				t, err := rt.startTransport(ctx)
				if err != nil {
					return err
				}
				if t == nil {
					return errors.NewValidationError("watch 需要配置通知传输（notify.transport）")
				}
				out := cmd.OutOrStdout()
				handler := messaging.HandlerFunc(func(ctx context.Context, msg *messaging.Message) error {
					var rev revision.Revision
					if err := msg.DecodePayload(&rev); err != nil {
						return err
					}
					if opts.Format == "json" {
						return printJSON(out, rev)
					}
					v := "-"
					if rev.VersionID != nil {
						v = fmt.Sprintf("v%d", rev.VersionNumber)
					}
					if _, err := fmt.Fprintf(out, "%s recipe=%d actor=%d version=%s records=%d fields=%v\n",
						rev.RevisedAt.Format(timeLayout), rev.RecipeID, rev.ActorID, v, rev.AuditRecordCount, rev.Fields); err != nil {
						return err
					}
					views, err := versionChanges(ctx, rt.snapshots, rev)
					if err != nil {
						// 快照读取失败不影响通知本身的输出
						rt.logger.Warn(ctx, "读取版本差异失败", logging.Int64("recipe_id", rev.RecipeID), logging.Error(err))
						return nil
					}
					for _, view := range views {
						if _, err := fmt.Fprintf(out, "  %s\n", view.Description); err != nil {
							return err
						}
					}
					return nil
				})
				if err := t.Subscribe(rt.cfg.Notify.Subject, handler); err != nil {
					return err
				}
				rt.logger.Info(ctx, "开始监听修订通知")
				<-ctx.Done()
				return nil
			})
		},
	}
}

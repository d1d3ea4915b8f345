package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"recipetrail/config"
	"recipetrail/data/db/basic"
	"recipetrail/errors"
	"recipetrail/logging"
	"recipetrail/messaging"
	"recipetrail/messaging/transport/memory"
	"recipetrail/messaging/transport/natsjetstream"
	"recipetrail/messaging/transport/redisstreams"
	"recipetrail/monitoring"
	"recipetrail/patterns/retry"
	"recipetrail/revision"
	"recipetrail/revision/version"
)

// 退出码
const (
	ExitSuccess  = 0
	ExitFailure  = 1 // 内部错误
	ExitRejected = 2 // 请求被拒绝：校验失败、资源不存在、生产上下文无效
)

// ValidFormats 支持的输出格式
var ValidFormats = []string{"text", "json"}

// RootOptions 全局参数
type RootOptions struct {
	ConfigPath      string
	DSN             string
	Driver          string
	Format          string
	MetricsTextfile string

	// Logger 非空时替代配置中的日志器（测试注入）
	Logger logging.Logger
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "recipetrail",
		Short:         "Recipe revision and audit trail engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database DSN (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver: sqlite|postgres|mysql (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRecipeCommand(opts))
	cmd.AddCommand(NewProductionCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewDiffVersionsCommand(opts))
	cmd.AddCommand(NewLotsCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// ExitCode 将错误映射为进程退出码
func ExitCode(err error) int {
	switch errors.CodeOf(err) {
	case "":
		if err == nil {
			return ExitSuccess
		}
		return ExitFailure
	case errors.ErrCodeValidation, errors.ErrCodeNotFound, errors.ErrCodeInvalidProductionContext:
		return ExitRejected
	default:
		return ExitFailure
	}
}

// runtime 一次命令执行所需的依赖
type runtime struct {
	cfg       *config.Config
	logger    logging.Logger
	db        *basic.DB
	registry  *prometheus.Registry
	metrics   *monitoring.Metrics
	transport messaging.Transport
	textfile  string

	// snapshots 进程内共享；watch 逐条比较相邻版本时复用上一条读过的快照
	snapshots *version.CachedReader
}

const snapshotCacheSize = 64

func openRuntime(ctx context.Context, opts *RootOptions) (*runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}

	logger := opts.Logger
	if logger == nil {
		zl, err := logging.NewZapLogger(cfg.Log.Mode, logging.ParseLevel(cfg.Log.Level))
		if err != nil {
			return nil, fmt.Errorf("初始化日志失败: %w", err)
		}
		logger = zl
	}
	logging.SetLogger(logger)

	db, err := basic.New(cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	registry := prometheus.NewRegistry()
	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		registry:  registry,
		metrics:   monitoring.NewMetrics(registry, cfg.Metrics.Namespace),
		textfile:  opts.MetricsTextfile,
		snapshots: version.NewCachedReader(version.NewRepository(db), snapshotCacheSize),
	}
	return rt, nil
}

// startTransport 按配置创建并启动通知传输；none 返回 nil
func (rt *runtime) startTransport(ctx context.Context) (messaging.Transport, error) {
	if rt.transport != nil {
		return rt.transport, nil
	}
	n := rt.cfg.Notify
	var t messaging.Transport
	switch strings.ToLower(n.Transport) {
	case "", config.TransportNone:
		return nil, nil
	case config.TransportMemory:
		t = memory.NewTransport(0, rt.logger)
	case config.TransportRedis:
		rs, err := redisstreams.NewTransport(redisstreams.Config{
			Addr:     n.Redis.Addr,
			Password: n.Redis.Password,
			DB:       n.Redis.DB,
			// 流名 = 前缀 + 消息类型
			StreamPrefix: strings.TrimSuffix(n.Redis.Stream, ":") + ":",
			MaxLen:       n.Redis.MaxLen,
			Logger:       rt.logger,
		})
		if err != nil {
			return nil, err
		}
		t = rs
	case config.TransportNATS:
		t = natsjetstream.NewTransport(natsjetstream.Config{
			URL:    n.NATS.URL,
			Stream: n.NATS.Stream,
			Logger: rt.logger,
		})
	default:
		return nil, fmt.Errorf("不支持的通知传输: %q", n.Transport)
	}
	if err := t.Start(ctx); err != nil {
		return nil, fmt.Errorf("启动通知传输失败: %w", err)
	}
	rt.transport = t
	return t, nil
}

// coordinator 组装编辑协调器；通知经过带关联 ID 与来源标记的消息总线
func (rt *runtime) coordinator(ctx context.Context) (*revision.Coordinator, error) {
	opts := []revision.Option{
		revision.WithLogger(rt.logger),
		revision.WithMetrics(rt.metrics),
	}
	t, err := rt.startTransport(ctx)
	if err != nil {
		return nil, err
	}
	if t != nil {
		bus := messaging.NewBus(t)
		bus.Use(messaging.CorrelationMiddleware{})
		bus.Use(messaging.SourceMiddleware{Source: "recipetrail"})
		bus.Use(messaging.LoggingMiddleware{Logger: rt.logger})
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxAttempts = rt.cfg.Notify.PublishAttempts
		if rt.cfg.Notify.RetryDelay > 0 {
			retryCfg.InitialDelay = rt.cfg.Notify.RetryDelay
		}
		retryCfg.OnRetry = func(attempt int, err error) {
			rt.logger.Warn(ctx, "修订通知发布失败，准备重试", logging.Int("attempt", attempt), logging.Error(err))
		}
		notifier := revision.NewMessageNotifier(bus,
			revision.WithMessageType(rt.cfg.Notify.Subject),
			revision.WithPublishRetry(retryCfg))
		opts = append(opts, revision.WithNotifier(notifier))
	}
	return revision.New(rt.db, opts...), nil
}

func (rt *runtime) Close() {
	if rt.transport != nil {
		_ = rt.transport.Close()
	}
	if rt.textfile != "" {
		if err := prometheus.WriteToTextfile(rt.textfile, rt.registry); err != nil {
			rt.logger.Warn(context.Background(), "写入指标文件失败", logging.String("path", rt.textfile), logging.Error(err))
		}
	}
	_ = rt.db.Close()
	if zl, ok := rt.logger.(*logging.ZapLogger); ok {
		_ = zl.Sync()
	}
}

// withRuntime 打开依赖、执行 fn 并在结束时释放
func withRuntime(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

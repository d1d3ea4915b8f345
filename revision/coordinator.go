// Package revision 编排一次配方编辑：在单个事务内完成变更、比对、
// 按需生成版本快照并写入审计记录，提交后发送修订通知。
package revision

import (
	"context"
	"time"

	core "recipetrail/data/db"
	"recipetrail/domain/recipe"
	"recipetrail/errors"
	"recipetrail/logging"
	"recipetrail/monitoring"
	"recipetrail/revision/audit"
	"recipetrail/revision/diff"
	"recipetrail/revision/lot"
	"recipetrail/revision/store"
	"recipetrail/revision/version"
)

// VersionAllocator 在事务内分配版本号并写入快照
type VersionAllocator interface {
	Allocate(ctx context.Context, tx core.IDatabase, recipeID, actorID int64, post recipe.Image) (version.Snapshot, error)
}

// AuditWriter 在事务内写入审计记录批次
type AuditWriter interface {
	Persist(ctx context.Context, tx core.IDatabase, records []audit.Record) ([]audit.Record, error)
}

// LotRecorder 尽力而为的批次引用写入；实现不得使外层事务失败
type LotRecorder interface {
	Upsert(ctx context.Context, tx core.ITransaction, sku, lot string) bool
}

// storeAuditWriter 默认实现：绑定到事务的 audit.Store
type storeAuditWriter struct{}

func (storeAuditWriter) Persist(ctx context.Context, tx core.IDatabase, records []audit.Record) ([]audit.Record, error) {
	return audit.NewStore(tx).Persist(ctx, records)
}

// Coordinator 编辑事务协调器
type Coordinator struct {
	db       core.IDatabase
	versions VersionAllocator
	audits   AuditWriter
	lots     LotRecorder
	notifier Notifier
	logger   logging.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// Option 配置项
type Option func(*Coordinator)

func WithVersionAllocator(a VersionAllocator) Option {
	return func(c *Coordinator) { c.versions = a }
}

func WithAuditWriter(w AuditWriter) Option {
	return func(c *Coordinator) { c.audits = w }
}

func WithLotRecorder(r LotRecorder) Option {
	return func(c *Coordinator) { c.lots = r }
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.ComponentLogger(l, "revision") }
}

// WithMetrics 同时把批次引用失败计入 lot_upsert_failures_total（使用默认 LotRecorder 时）
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock 指定时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New 创建协调器；未指定的协作者使用默认实现
func New(db core.IDatabase, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:       db,
		audits:   storeAuditWriter{},
		notifier: noopNotifier{},
		logger:   logging.ComponentLogger(nil, "revision"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.versions == nil {
		c.versions = version.NewAllocator(c.logger)
	}
	if c.lots == nil {
		lotOpts := []lot.Option{lot.WithLogger(c.logger)}
		if counter := c.metrics.LotFailures(); counter != nil {
			lotOpts = append(lotOpts, lot.WithFailureCounter(counter))
		}
		c.lots = lot.NewUpserter(lotOpts...)
	}
	return c
}

// editRun 单次编辑的执行状态
type editRun struct {
	req        recipe.EditRequest
	state      State
	production *recipe.Production
	pre        recipe.Image
	post       recipe.Image
	changes    []diff.Change
	records    []audit.Record
	snapshot   *version.Snapshot
}

func (r *editRun) enter(ctx context.Context, logger logging.Logger, s State) {
	r.state = s
	logger.Debug(ctx, "编辑阶段", logging.Int64("recipe_id", r.req.RecipeID), logging.String("state", s.String()))
}

// SubmitEdit 原子地应用一次编辑。
//
// 返回的错误码只会是 NOT_FOUND、INVALID_PRODUCTION_CONTEXT、VALIDATION_ERROR 或 INTERNAL；
// 任何错误都意味着事务已回滚，存储没有任何可见变化。
func (c *Coordinator) SubmitEdit(ctx context.Context, req recipe.EditRequest) (recipe.EditResult, error) {
	start := time.Now()
	run := &editRun{req: req}

	result, err := c.submit(ctx, run)
	if err != nil {
		outcome := monitoring.OutcomeAborted
		if run.state == StateValidating {
			outcome = monitoring.OutcomeRejected
		}
		run.state = StateAborted
		c.metrics.ObserveEdit(outcome, time.Since(start))
		c.logger.Warn(ctx, "配方编辑未提交",
			logging.Int64("recipe_id", req.RecipeID),
			logging.String("outcome", outcome),
			logging.String("code", string(errors.CodeOf(err))),
			logging.Error(err))
		return recipe.EditResult{}, errors.Normalize(err)
	}

	c.metrics.ObserveEdit(monitoring.OutcomeCommitted, time.Since(start))
	c.metrics.AddAuditRecords(result.AuditRecordCount)
	if run.snapshot != nil {
		c.metrics.IncVersionsCreated()
	}
	c.logger.Info(ctx, "配方编辑已提交",
		logging.Int64("recipe_id", req.RecipeID),
		logging.Int("changes", len(run.changes)),
		logging.Int("audit_records", result.AuditRecordCount),
		logging.Bool("versioned", run.snapshot != nil))

	if result.AuditRecordCount > 0 {
		c.notify(ctx, run)
	}
	return result, nil
}

func (c *Coordinator) submit(ctx context.Context, run *editRun) (recipe.EditResult, error) {
	req := run.req
	run.enter(ctx, c.logger, StateValidating)
	if err := req.Validate(); err != nil {
		return recipe.EditResult{}, err
	}
	if req.IsProduction {
		// 只读校验放在事务之外：内存 SQLite 只有一个连接，事务开启后根连接不可用
		p, err := c.resolveProduction(ctx, req.RecipeID, *req.ProductionID)
		if err != nil {
			return recipe.EditResult{}, err
		}
		run.production = &p
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return recipe.EditResult{}, errors.WrapDatabaseError(ctx, err, "开启事务")
	}
	defer tx.Rollback()

	run.enter(ctx, c.logger, StateMutating)
	repo := store.NewRecipeRepository(tx)
	if run.pre, err = repo.LoadImage(ctx, req.RecipeID, true); err != nil {
		return recipe.EditResult{}, err
	}
	if err := c.mutate(ctx, tx, repo, run); err != nil {
		return recipe.EditResult{}, err
	}

	run.enter(ctx, c.logger, StateDiffing)
	if run.post, err = repo.LoadImage(ctx, req.RecipeID, false); err != nil {
		return recipe.EditResult{}, err
	}
	run.changes = diff.Images(run.pre, run.post)
	actx := audit.Context{
		RecipeID:     req.RecipeID,
		ActorID:      req.ActorID,
		IsProduction: run.production != nil,
		Now:          c.now(),
	}
	if run.production != nil {
		actx.ProductionID = &run.production.ID
	}
	run.records = audit.Build(run.changes, actx)

	if run.production != nil && len(run.changes) > 0 {
		run.enter(ctx, c.logger, StateVersioning)
		snap, err := c.versions.Allocate(ctx, tx, req.RecipeID, req.ActorID, run.post)
		if err != nil {
			return recipe.EditResult{}, err
		}
		run.snapshot = &snap
		run.records = audit.Stamp(run.records, snap.ID, snap.VersionNumber, actx)
	} else {
		run.enter(ctx, c.logger, StateNoVersion)
	}

	run.enter(ctx, c.logger, StateAuditing)
	if len(run.records) > 0 {
		persisted, err := c.audits.Persist(ctx, tx, run.records)
		if err != nil {
			return recipe.EditResult{}, err
		}
		run.records = persisted
	}

	if err := tx.Commit(); err != nil {
		return recipe.EditResult{}, errors.WrapDatabaseError(ctx, err, "提交事务")
	}
	run.enter(ctx, c.logger, StateCommitted)

	result := recipe.EditResult{Recipe: run.post, AuditRecordCount: len(run.records)}
	if run.snapshot != nil {
		id := run.snapshot.ID
		result.VersionID = &id
	}
	return result, nil
}

// resolveProduction 生产记录必须存在、属于该配方且处于进行中
func (c *Coordinator) resolveProduction(ctx context.Context, recipeID, productionID int64) (recipe.Production, error) {
	p, err := store.NewRecipeRepository(c.db).FindProduction(ctx, productionID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return recipe.Production{}, errors.Errorf(errors.ErrCodeInvalidProductionContext,
				"生产记录不存在: %d", productionID)
		}
		return recipe.Production{}, err
	}
	if !p.AllowsEditsFor(recipeID) {
		return recipe.Production{}, errors.Errorf(errors.ErrCodeInvalidProductionContext,
			"生产记录 %d 不能用于编辑配方 %d（所属配方 %d，状态 %s）", p.ID, recipeID, p.RecipeID, p.Status).
			WithContext("production_id", p.ID)
	}
	return p, nil
}

func (c *Coordinator) notify(ctx context.Context, run *editRun) {
	rev := Revision{
		RecipeID:         run.req.RecipeID,
		ActorID:          run.req.ActorID,
		AuditRecordCount: len(run.records),
		Fields:           changedFields(run.changes),
		RevisedAt:        c.now(),
	}
	if run.production != nil {
		id := run.production.ID
		rev.ProductionID = &id
	}
	if run.snapshot != nil {
		id := run.snapshot.ID
		rev.VersionID = &id
		rev.VersionNumber = run.snapshot.VersionNumber
	}
	if err := c.notifier.Notify(ctx, rev); err != nil {
		c.metrics.IncNotifyFailures()
		c.logger.Warn(ctx, "修订通知发送失败",
			logging.Int64("recipe_id", rev.RecipeID),
			logging.Error(err))
	}
}

func changedFields(changes []diff.Change) []string {
	seen := make(map[string]bool, len(changes))
	out := make([]string, 0, len(changes))
	for _, ch := range changes {
		if !seen[ch.Field] {
			seen[ch.Field] = true
			out = append(out, ch.Field)
		}
	}
	return out
}

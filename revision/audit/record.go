// Package audit 把变更描述转换为只追加的审计记录，并负责持久化与查询。
package audit

import (
	"fmt"
	"time"

	"recipetrail/domain/recipe"
	"recipetrail/revision/diff"
)

// ChangeType 审计记录类型
type ChangeType string

const (
	ChangeAdmin          ChangeType = "admin"
	ChangeProduction     ChangeType = "production"
	ChangeVersionCreated ChangeType = "version_created"
)

// Record 审计记录。写入后不再修改；VersionID 只在写入前的内存批次中回填一次。
type Record struct {
	ID           int64      `json:"id"`
	RecipeID     int64      `json:"recipe_id"`
	VersionID    *int64     `json:"version_id"`
	ProductionID *int64     `json:"production_id"`
	ActorID      int64      `json:"actor_id"`
	ChangeType   ChangeType `json:"change_type"`
	FieldName    *string    `json:"field_name"`
	OldValue     *string    `json:"old_value"`
	NewValue     *string    `json:"new_value"`
	Description  string     `json:"description"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Context 构建审计记录所需的编辑上下文
type Context struct {
	RecipeID     int64
	ActorID      int64
	IsProduction bool
	ProductionID *int64
	Now          time.Time
}

func (c Context) changeType() ChangeType {
	if c.IsProduction {
		return ChangeProduction
	}
	return ChangeAdmin
}

// Build 每条变更描述生成一条审计记录；变更为空时返回 nil。纯函数，不写存储。
func Build(changes []diff.Change, ctx Context) []Record {
	if len(changes) == 0 {
		return nil
	}
	out := make([]Record, 0, len(changes))
	for _, c := range changes {
		field := c.Field
		rec := Record{
			RecipeID:     ctx.RecipeID,
			ProductionID: copyID(ctx.ProductionID),
			ActorID:      ctx.ActorID,
			ChangeType:   ctx.changeType(),
			FieldName:    &field,
			OldValue:     diff.Stringify(c.Old),
			NewValue:     diff.Stringify(c.New),
			Description:  Describe(c),
			CreatedAt:    ctx.Now,
		}
		out = append(out, rec)
	}
	return out
}

// Stamp 将批次内全部记录的 VersionID 改写为快照 ID，并追加一条 version_created 记录。
// 必须在持久化之前调用。
func Stamp(records []Record, versionID int64, versionNumber int, ctx Context) []Record {
	out := make([]Record, 0, len(records)+1)
	for _, r := range records {
		r.VersionID = copyID(&versionID)
		out = append(out, r)
	}
	return append(out, Record{
		RecipeID:     ctx.RecipeID,
		VersionID:    copyID(&versionID),
		ProductionID: copyID(ctx.ProductionID),
		ActorID:      ctx.ActorID,
		ChangeType:   ChangeVersionCreated,
		Description:  fmt.Sprintf("Created version %d", versionNumber),
		CreatedAt:    ctx.Now,
	})
}

// Describe 按变更类别生成描述文本
func Describe(c diff.Change) string {
	switch c.Kind {
	case diff.KindChildAdded:
		return fmt.Sprintf("Added ingredient: %s (SKU: %s)", c.Label, c.Key)
	case diff.KindChildRemoved:
		return fmt.Sprintf("Removed ingredient: %s (SKU: %s)", c.Label, c.Key)
	case diff.KindChildModified:
		return fmt.Sprintf("Changed ingredient %s (SKU: %s) %s from %s to %s",
			c.Label, c.Key, unqualified(c.Field), display(c.Old), display(c.New))
	case diff.KindCollection:
		switch c.Field {
		case diff.FieldOvenSteps:
			return "Updated oven temperatures"
		case diff.FieldMixingSteps:
			return "Updated mixing steps"
		default:
			return "Updated " + c.Field
		}
	default:
		return fmt.Sprintf("Changed %s from %s to %s", c.Field, display(c.Old), display(c.New))
	}
}

func display(v any) string {
	if s := diff.Stringify(v); s != nil {
		return *s
	}
	return "(empty)"
}

func unqualified(field string) string {
	prefix := recipe.IngredientKind + "."
	if len(field) > len(prefix) && field[:len(prefix)] == prefix {
		return field[len(prefix):]
	}
	return field
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

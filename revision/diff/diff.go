// Package diff 比较编辑前后的映像，产出有序的变更描述。
//
// 包内函数都是纯函数：不访问存储，不修改输入，对类型良好的输入不会 panic。
package diff

import "recipetrail/domain/recipe"

// Kind 变更类别
type Kind string

const (
	KindField         Kind = "field"
	KindChildAdded    Kind = "child_added"
	KindChildRemoved  Kind = "child_removed"
	KindChildModified Kind = "child_modified"
	KindCollection    Kind = "collection"
)

// Change 单条变更描述（尚未持久化）
type Change struct {
	Kind Kind
	// Field 字段名；子记录字段带限定前缀（如 ingredient.quantity），
	// 新增/删除子记录时为子记录类别名
	Field string
	// Key 子记录自然键；标量与集合变更为空
	Key string
	// Label 子记录的展示名
	Label string
	Old   any
	New   any
}

// Child 按自然键匹配的子记录
type Child interface {
	Key() string
	Label() string
	Fields() map[string]any
}

// Scalars 按 watched 顺序比较标量字段
func Scalars(pre, post map[string]any, watched []string) []Change {
	var out []Change
	for _, field := range watched {
		oldV, newV := pre[field], post[field]
		if Equal(oldV, newV) {
			continue
		}
		out = append(out, Change{Kind: KindField, Field: field, Old: oldV, New: newV})
	}
	return out
}

// Children 按自然键比较子记录集合。
//
// 输出顺序：修改（按 post 顺序，每条记录内按 watched 顺序）、新增（按 post 顺序）、
// 删除（按 pre 顺序）。同一键在 pre/post 中同时存在时只比较字段，
// 因此“删除后以同一 SKU 重新添加”表现为修改或无变化。
func Children(kind string, pre, post []Child, watched []string) []Change {
	preByKey := make(map[string]Child, len(pre))
	for _, c := range pre {
		preByKey[c.Key()] = c
	}
	postKeys := make(map[string]bool, len(post))
	for _, c := range post {
		postKeys[c.Key()] = true
	}

	var modified, added, removed []Change
	seen := make(map[string]bool, len(post))
	for _, c := range post {
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		before, ok := preByKey[key]
		if !ok {
			added = append(added, Change{Kind: KindChildAdded, Field: kind, Key: key, Label: c.Label(), New: c})
			continue
		}
		oldFields, newFields := before.Fields(), c.Fields()
		for _, field := range watched {
			if Equal(oldFields[field], newFields[field]) {
				continue
			}
			modified = append(modified, Change{
				Kind:  KindChildModified,
				Field: kind + "." + field,
				Key:   key,
				Label: c.Label(),
				Old:   oldFields[field],
				New:   newFields[field],
			})
		}
	}

	removedSeen := make(map[string]bool)
	for _, c := range pre {
		key := c.Key()
		if postKeys[key] || removedSeen[key] {
			continue
		}
		removedSeen[key] = true
		removed = append(removed, Change{Kind: KindChildRemoved, Field: kind, Key: key, Label: c.Label(), Old: c})
	}

	out := make([]Change, 0, len(modified)+len(added)+len(removed))
	out = append(out, modified...)
	out = append(out, added...)
	return append(out, removed...)
}

// Opaque 整体比较有序集合：结构不同（规范化 JSON 不同）时产出一条变更
func Opaque(field string, pre, post any) []Change {
	if structural(pre) == structural(post) {
		return nil
	}
	return []Change{{Kind: KindCollection, Field: field, Old: pre, New: post}}
}

// 有序子集合的字段名
const (
	FieldOvenSteps   = "oven_steps"
	FieldMixingSteps = "mixing_steps"
)

// Images 比较配方编辑前后的完整映像：
// 标量字段、配料（按 SKU）、烤炉步骤、搅拌步骤、成本覆盖（按类型）。
func Images(pre, post recipe.Image) []Change {
	var out []Change
	out = append(out, Scalars(pre.Recipe.Scalars(), post.Recipe.Scalars(), recipe.WatchedFields)...)
	out = append(out, Children(recipe.IngredientKind,
		ingredientChildren(pre.Ingredients),
		ingredientChildren(post.Ingredients),
		recipe.WatchedIngredientFields)...)
	out = append(out, Opaque(FieldOvenSteps, pre.OvenSteps, post.OvenSteps)...)
	out = append(out, Opaque(FieldMixingSteps, pre.MixingSteps, post.MixingSteps)...)
	out = append(out, Scalars(pre.CostOverrides.Scalars(), post.CostOverrides.Scalars(), recipe.CostFields())...)
	return out
}

func ingredientChildren(items []recipe.Ingredient) []Child {
	out := make([]Child, len(items))
	for i, ing := range items {
		out[i] = ing
	}
	return out
}

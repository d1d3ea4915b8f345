// Package recipe 定义修订引擎处理的领域模型：配方（被追踪实体）、配料（按 SKU 匹配的子记录）、
// 两个有序子集合（烤炉温度步骤、搅拌步骤）、成本覆盖以及生产上下文。
package recipe

import (
	"encoding/json"
	"time"
)

// 被监视（参与差异计算、允许 patch）的配方标量字段
const (
	FieldName             = "name"
	FieldDescription      = "description"
	FieldCategory         = "category"
	FieldYieldQuantity    = "yield_quantity"
	FieldYieldUnit        = "yield_unit"
	FieldWastePercent     = "waste_percent"
	FieldBakeTimeMinutes  = "bake_time_minutes"
	FieldProofTimeMinutes = "proof_time_minutes"
	FieldBatchSize        = "batch_size"
	FieldIsActive         = "is_active"
	FieldSettings         = "settings"
)

// WatchedFields 配方标量字段的固定顺序，差异输出按此顺序排列
var WatchedFields = []string{
	FieldName,
	FieldDescription,
	FieldCategory,
	FieldYieldQuantity,
	FieldYieldUnit,
	FieldWastePercent,
	FieldBakeTimeMinutes,
	FieldProofTimeMinutes,
	FieldBatchSize,
	FieldIsActive,
	FieldSettings,
}

// Recipe 配方
type Recipe struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	YieldQuantity    float64         `json:"yield_quantity"`
	YieldUnit        string          `json:"yield_unit"`
	WastePercent     float64         `json:"waste_percent"`
	BakeTimeMinutes  int             `json:"bake_time_minutes"`
	ProofTimeMinutes int             `json:"proof_time_minutes"`
	BatchSize        float64         `json:"batch_size"`
	IsActive         bool            `json:"is_active"`
	Settings         json.RawMessage `json:"settings,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
	UpdatedBy        int64           `json:"updated_by"`
}

// Scalars 返回被监视字段的当前值。
//
// settings 以规范化 JSON 字符串参与比较（键排序、无多余空白），
// 空值与 JSON null 都视为缺省。
func (r Recipe) Scalars() map[string]any {
	return map[string]any{
		FieldName:             r.Name,
		FieldDescription:      r.Description,
		FieldCategory:         r.Category,
		FieldYieldQuantity:    r.YieldQuantity,
		FieldYieldUnit:        r.YieldUnit,
		FieldWastePercent:     r.WastePercent,
		FieldBakeTimeMinutes:  r.BakeTimeMinutes,
		FieldProofTimeMinutes: r.ProofTimeMinutes,
		FieldBatchSize:        r.BatchSize,
		FieldIsActive:         r.IsActive,
		FieldSettings:         CanonicalSettings(r.Settings),
	}
}

// CanonicalSettings 将 settings 规范化为稳定的 JSON 字符串；缺省时返回 nil。
// 非法 JSON 原样返回其字符串形式。
func CanonicalSettings(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	if v == nil {
		return nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// OvenStep 烤炉温度步骤
type OvenStep struct {
	Position        int     `json:"position"`
	TemperatureC    float64 `json:"temperature_c"`
	DurationMinutes int     `json:"duration_minutes"`
	Steam           bool    `json:"steam"`
	FanSpeed        int     `json:"fan_speed"`
}

// MixingStep 搅拌步骤
type MixingStep struct {
	Position        int    `json:"position"`
	Speed           int    `json:"speed"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description"`
}

// CostType 成本类型
type CostType string

const (
	CostLabor     CostType = "labor"
	CostEnergy    CostType = "energy"
	CostPackaging CostType = "packaging"
	CostOverhead  CostType = "overhead"
)

// CostTypes 全部成本类型，差异输出按此顺序排列
var CostTypes = []CostType{CostLabor, CostEnergy, CostPackaging, CostOverhead}

// Valid 是否为已知成本类型
func (c CostType) Valid() bool {
	for _, t := range CostTypes {
		if c == t {
			return true
		}
	}
	return false
}

// CostOverride 单项成本覆盖
type CostOverride struct {
	Type  CostType `json:"cost_type"`
	Value float64  `json:"value"`
}

// CostOverrides 按成本类型索引的覆盖值
type CostOverrides map[CostType]float64

// Scalars 以 cost_override.<type> 为键返回覆盖值，未设置的类型为 nil
func (c CostOverrides) Scalars() map[string]any {
	out := make(map[string]any, len(CostTypes))
	for _, t := range CostTypes {
		if v, ok := c[t]; ok {
			out[CostFieldName(t)] = v
		} else {
			out[CostFieldName(t)] = nil
		}
	}
	return out
}

// CostFieldName 成本覆盖在审计记录中的字段名
func CostFieldName(t CostType) string {
	return "cost_override." + string(t)
}

// CostFields 全部成本覆盖字段名
func CostFields() []string {
	out := make([]string, len(CostTypes))
	for i, t := range CostTypes {
		out[i] = CostFieldName(t)
	}
	return out
}

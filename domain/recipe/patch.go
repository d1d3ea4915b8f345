package recipe

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"recipetrail/errors"
)

// Patch 配方标量字段的部分更新：只修改出现的键，键必须是被监视字段
type Patch map[string]any

// Validate 检查键是否合法以及值能否转换为目标类型
func (p Patch) Validate() error {
	var scratch Recipe
	return p.ApplyTo(&scratch)
}

// ApplyTo 将 patch 应用到 r。数值字段接受数字、json.Number 与数字字符串；
// 字符串字段接受字符串（nil 视为空串）；settings 接受任意可 JSON 序列化的值。
func (p Patch) ApplyTo(r *Recipe) error {
	for key, raw := range p {
		var err error
		switch key {
		case FieldName:
			var s string
			if s, err = coerceString(key, raw); err == nil {
				if strings.TrimSpace(s) == "" {
					err = invalidField(key, "不能为空")
				}
				r.Name = s
			}
		case FieldDescription:
			r.Description, err = coerceString(key, raw)
		case FieldCategory:
			r.Category, err = coerceString(key, raw)
		case FieldYieldUnit:
			r.YieldUnit, err = coerceString(key, raw)
		case FieldYieldQuantity:
			r.YieldQuantity, err = coerceNonNegative(key, raw)
		case FieldWastePercent:
			r.WastePercent, err = coerceNonNegative(key, raw)
			if err == nil && r.WastePercent > 100 {
				err = invalidField(key, "不能大于100")
			}
		case FieldBatchSize:
			r.BatchSize, err = coerceNonNegative(key, raw)
		case FieldBakeTimeMinutes:
			r.BakeTimeMinutes, err = coerceMinutes(key, raw)
		case FieldProofTimeMinutes:
			r.ProofTimeMinutes, err = coerceMinutes(key, raw)
		case FieldIsActive:
			r.IsActive, err = coerceBool(key, raw)
		case FieldSettings:
			r.Settings, err = coerceSettings(key, raw)
		default:
			err = errors.Errorf(errors.ErrCodeValidation, "未知的配方字段: %s", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func invalidField(key, reason string) error {
	return errors.NewError(errors.ErrCodeValidation, key+reason).WithContext("field", key)
}

func coerceString(key string, v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	default:
		return "", invalidField(key, fmt.Sprintf("必须为字符串（当前%T）", v))
	}
}

// ParseNumber 将数字类型或数字字符串解析为 float64
func ParseNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceNonNegative(key string, v any) (float64, error) {
	if v == nil {
		return 0, nil
	}
	f, ok := ParseNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidField(key, "必须为有限数值")
	}
	if f < 0 {
		return 0, invalidField(key, "不能为负数")
	}
	return f, nil
}

func coerceMinutes(key string, v any) (int, error) {
	f, err := coerceNonNegative(key, v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, invalidField(key, "必须为整数分钟")
	}
	return int(f), nil
}

func coerceBool(key string, v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return false, invalidField(key, "必须为布尔值")
		}
		return b, nil
	default:
		if f, ok := ParseNumber(v); ok && (f == 0 || f == 1) {
			return f == 1, nil
		}
		return false, invalidField(key, "必须为布尔值")
	}
}

func coerceSettings(key string, v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(val) == 0 {
			return nil, nil
		}
		if !json.Valid(val) {
			return nil, invalidField(key, "不是合法的JSON")
		}
		return val, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		if !json.Valid([]byte(val)) {
			return nil, invalidField(key, "不是合法的JSON")
		}
		return json.RawMessage(val), nil
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return nil, invalidField(key, "无法序列化为JSON")
		}
		return out, nil
	}
}

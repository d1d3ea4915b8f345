package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Tolerance 数值比较容差：两个数值之差不超过该值视为相等
const Tolerance = 0.0001

// float64 无法精确表示 0.0001，10.0001-10 会略大于 Tolerance，
// 比较时额外放宽一个极小量。
const epsilon = 1e-9

// IsAbsent nil、空字符串（含仅空白）视为缺省
func IsAbsent(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case *string:
		return val == nil || strings.TrimSpace(*val) == ""
	case json.RawMessage:
		trimmed := bytes.TrimSpace(val)
		return len(trimmed) == 0 || string(trimmed) == "null"
	default:
		return false
	}
}

// Equal 数值容差比较器。
//
// 两者都缺省时相等；仅一方缺省时不等；两者都能解析为有限数值时按容差比较；
// 否则比较去除首尾空白后的字符串形式。
func Equal(a, b any) bool {
	aAbsent, bAbsent := IsAbsent(a), IsAbsent(b)
	if aAbsent || bAbsent {
		return aAbsent && bAbsent
	}
	if fa, ok := toFinite(a); ok {
		if fb, ok := toFinite(b); ok {
			return math.Abs(fa-fb) <= Tolerance+epsilon
		}
	}
	return render(a) == render(b)
}

// Stringify 审计记录中的值表示；缺省时返回 nil
func Stringify(v any) *string {
	if IsAbsent(v) {
		return nil
	}
	s := render(v)
	return &s
}

func toFinite(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint32:
		f = float64(val)
	case uint64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// render 生成值的稳定字符串形式（已去除首尾空白）
func render(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case *string:
		if val == nil {
			return ""
		}
		return strings.TrimSpace(*val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(val)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return strings.TrimSpace(val.String())
	case json.RawMessage:
		return string(canonicalJSON(val))
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return strings.TrimSpace(fmt.Sprint(val))
		}
		return string(out)
	}
}

// canonicalJSON 规范化 JSON：对象键排序、去除空白；非法 JSON 原样返回
func canonicalJSON(raw []byte) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return bytes.TrimSpace(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return bytes.TrimSpace(raw)
	}
	return out
}

// structural 将任意值编码为规范化 JSON；null、空数组、空对象统一为空
func structural(v any) string {
	if v == nil {
		return ""
	}
	var raw []byte
	switch val := v.(type) {
	case json.RawMessage:
		raw = val
	case []byte:
		raw = val
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%#v", val)
		}
		raw = out
	}
	out := string(canonicalJSON(raw))
	switch out {
	case "", "null", "[]", "{}":
		return ""
	}
	return out
}

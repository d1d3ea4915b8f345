package recipe

import "strings"

// 被监视的配料字段
const (
	IngredientName          = "name"
	IngredientQuantity      = "quantity"
	IngredientUnit          = "unit"
	IngredientPercentage    = "percentage"
	IngredientCalories      = "calories"
	IngredientProtein       = "protein"
	IngredientFat           = "fat"
	IngredientCarbohydrates = "carbohydrates"
	IngredientSugar         = "sugar"
	IngredientSalt          = "salt"
	IngredientFiber         = "fiber"
	IngredientLot           = "lot"
)

// IngredientKind 配料在差异字段名中的限定前缀
const IngredientKind = "ingredient"

// WatchedIngredientFields 配料的被监视字段，顺序即差异输出顺序
var WatchedIngredientFields = []string{
	IngredientName,
	IngredientQuantity,
	IngredientUnit,
	IngredientPercentage,
	IngredientCalories,
	IngredientProtein,
	IngredientFat,
	IngredientCarbohydrates,
	IngredientSugar,
	IngredientSalt,
	IngredientFiber,
	IngredientLot,
}

// Ingredient 配料。SKU 是配方内的自然键，ID 只是存储层代理键，
// 同一次编辑内删除后重新插入会得到新的 ID。
type Ingredient struct {
	ID            int64   `json:"-"`
	RecipeID      int64   `json:"-"`
	SKU           string  `json:"sku"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	Percentage    float64 `json:"percentage"`
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
	Carbohydrates float64 `json:"carbohydrates"`
	Sugar         float64 `json:"sugar"`
	Salt          float64 `json:"salt"`
	Fiber         float64 `json:"fiber"`
	Lot           string  `json:"lot,omitempty"`
	Position      int     `json:"position"`
}

func (i Ingredient) Key() string   { return i.SKU }
func (i Ingredient) Label() string { return i.Name }

// Fields 返回被监视字段的值
func (i Ingredient) Fields() map[string]any {
	return map[string]any{
		IngredientName:          i.Name,
		IngredientQuantity:      i.Quantity,
		IngredientUnit:          i.Unit,
		IngredientPercentage:    i.Percentage,
		IngredientCalories:      i.Calories,
		IngredientProtein:       i.Protein,
		IngredientFat:           i.Fat,
		IngredientCarbohydrates: i.Carbohydrates,
		IngredientSugar:         i.Sugar,
		IngredientSalt:          i.Salt,
		IngredientFiber:         i.Fiber,
		IngredientLot:           i.Lot,
	}
}

// Normalized 返回去除 SKU、批次号首尾空白后的副本
func (i Ingredient) Normalized() Ingredient {
	i.SKU = strings.TrimSpace(i.SKU)
	i.Lot = strings.TrimSpace(i.Lot)
	return i
}

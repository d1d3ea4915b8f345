package recipe

// ProductionStatus 生产状态
type ProductionStatus string

const (
	ProductionPlanned    ProductionStatus = "planned"
	ProductionInProgress ProductionStatus = "in_progress"
	ProductionCompleted  ProductionStatus = "completed"
	ProductionCancelled  ProductionStatus = "cancelled"
)

// ProductionStatuses 全部合法状态
var ProductionStatuses = []ProductionStatus{
	ProductionPlanned, ProductionInProgress, ProductionCompleted, ProductionCancelled,
}

// Production 生产批次
type Production struct {
	ID       int64            `json:"id"`
	RecipeID int64            `json:"recipe_id"`
	Status   ProductionStatus `json:"status"`
}

// AllowsEditsFor 生产记录可作为 recipeID 的有效生产上下文：属于该配方且正在进行
func (p Production) AllowsEditsFor(recipeID int64) bool {
	return p.RecipeID == recipeID && p.Status == ProductionInProgress
}

// IngredientOverride 生产批次内对配料用量/批次号的覆盖，按 (production_id, sku) 唯一
type IngredientOverride struct {
	SKU      string  `json:"sku"`
	Quantity float64 `json:"quantity"`
	Lot      string  `json:"lot,omitempty"`
}

package recipe

import "encoding/json"

// Image 配方在某一时刻的完整映像：实体、配料与各子集合
type Image struct {
	Recipe        Recipe        `json:"recipe"`
	Ingredients   []Ingredient  `json:"ingredients"`
	OvenSteps     []OvenStep    `json:"oven_steps"`
	MixingSteps   []MixingStep  `json:"mixing_steps"`
	CostOverrides CostOverrides `json:"cost_overrides"`
}

// IngredientBySKU 按 SKU 查找配料
func (img Image) IngredientBySKU(sku string) (Ingredient, bool) {
	for _, ing := range img.Ingredients {
		if ing.SKU == sku {
			return ing, true
		}
	}
	return Ingredient{}, false
}

// recipeSnapshot 版本快照中的实体部分：配方标量 + 有序子集合 + 成本覆盖
type recipeSnapshot struct {
	Recipe
	OvenSteps     []OvenStep    `json:"oven_steps"`
	MixingSteps   []MixingStep  `json:"mixing_steps"`
	CostOverrides CostOverrides `json:"cost_overrides"`
}

// SnapshotJSON 将映像序列化为版本快照的两部分：
// recipe（配方 + 子集合）与 ingredients（配料列表）。
func (img Image) SnapshotJSON() (recipeJSON, ingredientsJSON []byte, err error) {
	snap := recipeSnapshot{
		Recipe:        img.Recipe,
		OvenSteps:     nonNil(img.OvenSteps),
		MixingSteps:   nonNil(img.MixingSteps),
		CostOverrides: img.CostOverrides,
	}
	if snap.CostOverrides == nil {
		snap.CostOverrides = CostOverrides{}
	}
	if recipeJSON, err = json.Marshal(snap); err != nil {
		return nil, nil, err
	}
	if ingredientsJSON, err = json.Marshal(nonNil(img.Ingredients)); err != nil {
		return nil, nil, err
	}
	return recipeJSON, ingredientsJSON, nil
}

// ImageFromSnapshot 由版本快照的两部分还原映像
func ImageFromSnapshot(recipeJSON, ingredientsJSON []byte) (Image, error) {
	var snap recipeSnapshot
	if err := json.Unmarshal(recipeJSON, &snap); err != nil {
		return Image{}, err
	}
	var ingredients []Ingredient
	if len(ingredientsJSON) > 0 {
		if err := json.Unmarshal(ingredientsJSON, &ingredients); err != nil {
			return Image{}, err
		}
	}
	return Image{
		Recipe:        snap.Recipe,
		Ingredients:   ingredients,
		OvenSteps:     snap.OvenSteps,
		MixingSteps:   snap.MixingSteps,
		CostOverrides: snap.CostOverrides,
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

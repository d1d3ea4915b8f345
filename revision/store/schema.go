// Package store 提供修订引擎的表结构与配方仓储。
//
// 仓储绑定到一个 db.IDatabase：传入根连接用于只读查询，传入事务用于编辑流程中的全部读写。
package store

import (
	"context"
	"fmt"
	"strings"

	core "recipetrail/data/db"
	"recipetrail/data/db/dialect"
	"recipetrail/errors"
)

// 表名
const (
	TableRecipes                       = "recipes"
	TableIngredients                   = "ingredients"
	TableOvenSteps                     = "oven_steps"
	TableMixingSteps                   = "mixing_steps"
	TableCostOverrides                 = "cost_overrides"
	TableProductions                   = "productions"
	TableProductionIngredientOverrides = "production_ingredient_overrides"
	TableRecipeVersions                = "recipe_versions"
	TableAuditRecords                  = "recipe_audit_records"
	TableLotReferences                 = "lot_references"
)

// Migrate 幂等地创建全部表（CREATE TABLE IF NOT EXISTS），不做结构变更迁移。
func Migrate(ctx context.Context, db core.IDatabase) error {
	d := dialect.FromDatabase(db)
	for _, stmt := range schemaStatements(d) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return errors.WrapDatabaseError(ctx, err, "创建表结构")
		}
	}
	return nil
}

func schemaStatements(d dialect.Dialect) []string {
	pk := d.AutoIncrementPrimaryKey()
	ts := d.TimestampType()
	text := d.TextType()
	const num = "DOUBLE PRECISION"

	tables := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS recipes (
			id %s,
			name VARCHAR(255) NOT NULL,
			description %s NOT NULL,
			category VARCHAR(128) NOT NULL DEFAULT '',
			yield_quantity %s NOT NULL DEFAULT 0,
			yield_unit VARCHAR(32) NOT NULL DEFAULT '',
			waste_percent %s NOT NULL DEFAULT 0,
			bake_time_minutes INTEGER NOT NULL DEFAULT 0,
			proof_time_minutes INTEGER NOT NULL DEFAULT 0,
			batch_size %s NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			settings %s NULL,
			updated_at %s NULL,
			updated_by BIGINT NULL
		)`, pk, text, num, num, num, text, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ingredients (
			id %s,
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			sku VARCHAR(128) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			quantity %[2]s NOT NULL DEFAULT 0,
			unit VARCHAR(32) NOT NULL DEFAULT '',
			percentage %[2]s NOT NULL DEFAULT 0,
			calories %[2]s NOT NULL DEFAULT 0,
			protein %[2]s NOT NULL DEFAULT 0,
			fat %[2]s NOT NULL DEFAULT 0,
			carbohydrates %[2]s NOT NULL DEFAULT 0,
			sugar %[2]s NOT NULL DEFAULT 0,
			salt %[2]s NOT NULL DEFAULT 0,
			fiber %[2]s NOT NULL DEFAULT 0,
			lot VARCHAR(128) NULL,
			position INTEGER NOT NULL DEFAULT 0,
			UNIQUE (recipe_id, sku)
		)`, pk, num),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS oven_steps (
			id %s,
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			temperature_c %s NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			steam BOOLEAN NOT NULL DEFAULT FALSE,
			fan_speed INTEGER NOT NULL DEFAULT 0
		)`, pk, num),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS mixing_steps (
			id %s,
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			speed INTEGER NOT NULL DEFAULT 0,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			description %s NOT NULL
		)`, pk, text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cost_overrides (
			id %s,
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			cost_type VARCHAR(32) NOT NULL,
			amount %s NOT NULL,
			UNIQUE (recipe_id, cost_type)
		)`, pk, num),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS productions (
			id %s,
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			status VARCHAR(32) NOT NULL,
			created_at %s NOT NULL
		)`, pk, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS production_ingredient_overrides (
			id %s,
			production_id BIGINT NOT NULL REFERENCES productions(id) ON DELETE CASCADE,
			sku VARCHAR(128) NOT NULL,
			quantity %s NOT NULL,
			lot VARCHAR(128) NULL,
			UNIQUE (production_id, sku)
		)`, pk, num),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS recipe_versions (
			id %s,
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			version_number INTEGER NOT NULL,
			created_by BIGINT NOT NULL,
			recipe_snapshot %s NOT NULL,
			ingredients_snapshot %[2]s NOT NULL,
			created_at %s NOT NULL,
			UNIQUE (recipe_id, version_number)
		)`, pk, text, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS recipe_audit_records (
			id %s,
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			version_id BIGINT NULL REFERENCES recipe_versions(id) ON DELETE CASCADE,
			production_id BIGINT NULL,
			actor_id BIGINT NOT NULL,
			change_type VARCHAR(32) NOT NULL,
			field_name VARCHAR(128) NULL,
			old_value %s NULL,
			new_value %[2]s NULL,
			description %[2]s NOT NULL,
			created_at %s NOT NULL
		)`, pk, text, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lot_references (
			id %s,
			sku VARCHAR(128) NOT NULL,
			lot VARCHAR(128) NOT NULL,
			last_used_at %s NOT NULL,
			UNIQUE (sku, lot)
		)`, pk, ts),
	}

	// MySQL 不支持 CREATE INDEX IF NOT EXISTS，索引只在其余方言上创建
	if d.Name() != dialect.NameMySQL {
		tables = append(tables,
			`CREATE INDEX IF NOT EXISTS idx_audit_records_recipe ON recipe_audit_records (recipe_id, id)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_records_version ON recipe_audit_records (version_id)`,
			`CREATE INDEX IF NOT EXISTS idx_productions_recipe ON productions (recipe_id)`,
		)
	}

	for i, stmt := range tables {
		tables[i] = strings.TrimSpace(stmt)
	}
	return tables
}

package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRebind_Postgres(t *testing.T) {
	d := New("postgres")
	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?)"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", d.Rebind(q))
}

func TestRebind_SkipsStringLiterals(t *testing.T) {
	d := New("pgx")
	got := d.Rebind("SELECT * FROM t WHERE note = 'what?' AND id = ?")
	assert.Equal(t, "SELECT * FROM t WHERE note = 'what?' AND id = $1", got)
}

func TestRebind_NoChangeForMySQLSQLite(t *testing.T) {
	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	for _, name := range []string{"mysql", "sqlite", "unknown"} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, orig, New(name).Rebind(orig))
		})
	}
}

func TestCapabilities(t *testing.T) {
	pg := New("postgresql")
	lite := New("sqlite3")

	assert.Equal(t, NamePostgres, pg.Name())
	assert.Equal(t, "pgx", pg.DriverName())
	assert.True(t, pg.SupportsForUpdate())
	assert.True(t, pg.SupportsReturning())
	assert.Equal(t, "BIGSERIAL PRIMARY KEY", pg.AutoIncrementPrimaryKey())

	assert.Equal(t, NameSQLite, lite.Name())
	assert.False(t, lite.SupportsForUpdate())
	assert.True(t, lite.SupportsReturning())
	assert.Equal(t, `"recipes"."id"`, lite.QuoteIdentifier("recipes.id"))
	assert.Equal(t, "`recipes`", New("mysql").QuoteIdentifier("recipes"))
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	assert.True(t, New("postgres").IsUniqueViolation(fmt.Errorf("insert: %w", pgErr)))
	assert.False(t, New("postgres").IsUniqueViolation(&pgconn.PgError{Code: "23503"}))

	assert.True(t, New("sqlite").IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: recipe_versions.recipe_id")))
	assert.True(t, New("mysql").IsUniqueViolation(errors.New("Error 1062: Duplicate entry '1-1'")))
	assert.True(t, New("mysql").IsUniqueViolation(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.False(t, New("mysql").IsUniqueViolation(&mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}))
	assert.False(t, New("sqlite").IsUniqueViolation(errors.New("no such table: recipes")))
	assert.False(t, New("sqlite").IsUniqueViolation(nil))
}

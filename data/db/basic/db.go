// Package basic 基于 database/sql 实现 db.IDatabase。
package basic

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // 注册 mysql 驱动
	_ "github.com/jackc/pgx/v5/stdlib" // 注册 pgx 驱动
	_ "modernc.org/sqlite"             // 注册 sqlite 驱动

	core "recipetrail/data/db"
	"recipetrail/data/db/dialect"
)

// DB 基于 database/sql 的最小实现，满足 core.IDatabase 抽象
type DB struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// New 根据 core.DBConfig 创建数据库实例
//
// Driver 为空时默认 sqlite；postgres 使用 pgx 的 database/sql 驱动，mysql 使用 go-sql-driver。
// MySQL 的 DSN 需要带 parseTime=true，时间列才能扫描为 time.Time。
// 内存 SQLite 每个连接是独立的数据库，因此 ":memory:" 时强制单连接。
// SQLite 的每个连接都会开启外键约束与 busy_timeout，写事务以 BEGIN IMMEDIATE 开始，
// 并发写入在 BEGIN 处排队，而不是在 COMMIT 时失败。
func New(config core.DBConfig) (*DB, error) {
	name := config.Driver
	if name == "" {
		name = "sqlite"
	}
	dial := dialect.New(name)
	if dial.Name() == dialect.NameUnknown {
		return nil, fmt.Errorf("basic: unsupported driver %q", config.Driver)
	}

	dsn := config.Database
	if dial.Name() == dialect.NameSQLite {
		dsn = sqliteDSN(dsn, config.BusyTimeout)
	}

	db, err := sql.Open(dial.DriverName(), dsn)
	if err != nil {
		return nil, err
	}

	maxOpen := config.MaxOpenConns
	if dial.Name() == dialect.NameSQLite && isMemoryDSN(config.Database) {
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleTime) * time.Second)
	}

	// 基础可用性检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, dialect: dial}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || dsn == ":memory:" || dsn == "file::memory:" ||
		(len(dsn) > 13 && dsn[:13] == "file::memory:")
}

const defaultBusyTimeout = 5000

// sqliteDSN 为 modernc sqlite 追加连接级参数；调用方已显式给出的参数不覆盖。
func sqliteDSN(dsn string, busyTimeout int) string {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	if dsn == "" {
		dsn = ":memory:"
	}

	var params []string
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout))
	}
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx 在独占的连接上开启事务，事务结束时连接归还连接池。
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Tx{db: d.db, conn: conn, tx: tx, dialect: d.dialect}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// GetDialectName 实现 core.IDialectNameProvider 接口
func (d *DB) GetDialectName() string {
	return string(d.dialect.Name())
}

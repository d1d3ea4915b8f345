// Package db 提供通用的数据库抽象接口
//
// 修订引擎的存储层只依赖这里的接口：生产环境由 basic 包基于 database/sql
// 实现（SQLite / Postgres / MySQL），测试中使用内存 SQLite。
package db

import (
	"context"
	"database/sql"
	"fmt"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	// 查询操作
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow

	// 执行操作
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// 事务操作
	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	// 连接管理
	Ping(ctx context.Context) error
	Close() error

	// 获取原始连接（用于特殊场景）
	Raw() any
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
//
// 实现方应返回诸如 "mysql"、"sqlite"、"postgres" 等方言名，
// 供 dialect 包推断方言能力（占位符、FOR UPDATE、唯一键错误识别等）。
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error

	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver string // sqlite, postgres, mysql
	// Database 为驱动 DSN：sqlite 为文件路径或 ":memory:"，postgres 为连接串
	Database string

	// 连接池配置
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒

	// BusyTimeout 仅对 sqlite 生效：写锁被占用时等待的毫秒数，0 表示默认 5000
	BusyTimeout int
}

// NewDatabaseFunc 工厂方法（由具体实现提供）
type NewDatabaseFunc func(config DBConfig) (IDatabase, error)

// WithSavepoint 在事务内以保存点包裹 fn：fn 失败时只回滚到保存点，
// 事务本身保持可用（Postgres 下失败语句会使整个事务进入 aborted 状态，必须这样隔离）。
//
// fn 发生 panic 时同样回滚到保存点，并把 panic 转换为错误返回。
func WithSavepoint(ctx context.Context, tx ITransaction, name string, fn func() error) (err error) {
	if _, err = tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint %s: %w", name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in savepoint %s: %v", name, r)
		}
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
				err = fmt.Errorf("%w (rollback to savepoint failed: %v)", err, rbErr)
				return
			}
		}
		if _, relErr := tx.Exec(ctx, "RELEASE SAVEPOINT "+name); relErr != nil && err == nil {
			err = fmt.Errorf("release savepoint %s: %w", name, relErr)
		}
	}()

	return fn()
}

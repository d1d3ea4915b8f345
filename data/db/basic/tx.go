package basic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	core "recipetrail/data/db"
	"recipetrail/data/db/dialect"
)

var errNestedTx = errors.New("basic.Tx: nested transactions are not supported, use core.WithSavepoint")

// Tx 绑定在单个连接上的事务。
//
// 事务期间连接由 Tx 独占；Commit 或 Rollback 之后连接归还连接池。
// Tx 同时满足 core.IDatabase，可以透传给只接受 DB 的仓储。
type Tx struct {
	db      *sql.DB
	conn    *sql.Conn
	tx      *sql.Tx
	dialect dialect.Dialect

	release sync.Once
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) Begin(context.Context) (core.ITransaction, error) { return nil, errNestedTx }

func (t *Tx) BeginTx(context.Context, *sql.TxOptions) (core.ITransaction, error) {
	return nil, errNestedTx
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }
func (t *Tx) Raw() any                       { return t.tx }

// Commit 提交事务。
//
// SQLite 的 COMMIT 失败（例如 SQLITE_BUSY）时事务在连接上仍处于打开状态，
// 而 database/sql 已把它视为结束；这里显式 ROLLBACK，保证归还的连接干净。
func (t *Tx) Commit() error {
	err := t.tx.Commit()
	if err != nil && t.dialect.Name() == dialect.NameSQLite {
		if _, rbErr := t.conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
			err = fmt.Errorf("%w (rollback after failed commit: %v)", err, rbErr)
		}
	}
	t.releaseConn()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	t.releaseConn()
	return err
}

func (t *Tx) releaseConn() {
	t.release.Do(func() { _ = t.conn.Close() })
}

// GetDialectName 实现 core.IDialectNameProvider，便于在事务上下文中复用方言能力。
func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}

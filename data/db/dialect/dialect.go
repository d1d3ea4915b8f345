package dialect

import (
	stdErrors "errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	core "recipetrail/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// 唯一约束冲突：postgres SQLSTATE 与 mysql 错误号
const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// Dialect 表示当前数据库的方言能力
//
// 只抽象项目实际用到的能力：
//   - 占位符改写（Rebind）
//   - 行锁（FOR UPDATE）与 RETURNING
//   - 唯一键冲突识别与原生 upsert 语法
//   - 建表所需的自增主键、时间戳类型
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
//
// 驱动名 pgx 视为 postgres，sqlite3 视为 sqlite。
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return Dialect{name: NameMySQL}
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言
//
// 需要 IDatabase 可选实现 IDialectNameProvider 接口；否则返回 Unknown。
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// DriverName 返回 database/sql 注册的驱动名
func (d Dialect) DriverName() string {
	switch d.name {
	case NamePostgres:
		return "pgx"
	case NameSQLite:
		return "sqlite"
	case NameMySQL:
		return "mysql"
	default:
		return ""
	}
}

// QuoteIdentifier 根据方言对标识符进行转义（如表名/列名）。
//
// 约定：
//   - 支持 schema.table、table.column 等带点形式，会对每一段分别加引号；
//   - MySQL 使用反引号 `name`，Postgres/SQLite 使用双引号 "name"；
//   - Unknown 方言返回原始字符串。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		switch d.name {
		case NameMySQL:
			parts[i] = "`" + p + "`"
		case NameSQLite, NamePostgres:
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
//
// 仅对 Postgres 做替换，将 ? 依次替换为 $1、$2...
// 单引号字符串字面量内的 ? 保持原样。
func (d Dialect) Rebind(query string) string {
	if query == "" || d.name != NamePostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	argIndex := 1
	inLiteral := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inLiteral = !inLiteral
			sb.WriteByte(ch)
		case ch == '?' && !inLiteral:
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// SupportsForUpdate 是否支持 SELECT ... FOR UPDATE
//
// SQLite 在写事务内串行化，不需要也不支持行锁语法。
func (d Dialect) SupportsForUpdate() bool {
	return d.name == NameMySQL || d.name == NamePostgres
}

// SupportsReturning 是否支持 INSERT ... RETURNING
func (d Dialect) SupportsReturning() bool {
	return d.name == NamePostgres || d.name == NameSQLite
}

// AutoIncrementPrimaryKey 返回自增主键列定义
func (d Dialect) AutoIncrementPrimaryKey() string {
	switch d.name {
	case NamePostgres:
		return "BIGSERIAL PRIMARY KEY"
	case NameMySQL:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// TimestampType 返回时间戳列类型
func (d Dialect) TimestampType() string {
	switch d.name {
	case NamePostgres:
		return "TIMESTAMPTZ"
	case NameMySQL:
		return "DATETIME(6)"
	default:
		return "TIMESTAMP"
	}
}

// TextType 返回长文本列类型
func (d Dialect) TextType() string {
	if d.name == NameMySQL {
		return "LONGTEXT"
	}
	return "TEXT"
}

// IsUniqueViolation 判断错误是否为唯一键/主键冲突
//
// 优先识别驱动错误类型（pgconn.PgError 的 SQLSTATE 23505、MySQL 错误号 1062、SQLite 扩展错误码），
// 识别不了时退回到错误消息关键字匹配。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if stdErrors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *sqlite.Error
	if stdErrors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameMySQL:
		return strings.Contains(msg, "duplicate entry") ||
			strings.Contains(msg, "duplicate key")
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	}
}

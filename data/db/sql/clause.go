package sql

import (
	"fmt"
	"strings"

	"recipetrail/data/db/dialect"
)

// conditions 以 AND 连接的 WHERE 片段及其参数，三种 DML 构建器共用。
type conditions struct {
	exprs []string
	args  []any
}

func (c *conditions) add(expr string, args []any) {
	if expr == "" {
		return
	}
	c.exprs = append(c.exprs, expr)
	c.args = append(c.args, args...)
}

func (c *conditions) writeTo(sb *strings.Builder) {
	if len(c.exprs) == 0 {
		return
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(c.exprs, " AND "))
}

// mustIdent 校验表名或列名。标识符来自代码中的常量，
// 不合法说明调用方写错了，直接 panic。
func mustIdent(op, name string) string {
	if !validIdent(name) {
		panic(fmt.Sprintf("%s: unsafe identifier %q", op, name))
	}
	return name
}

// quoteIdent 校验后按方言加引号
func quoteIdent(d dialect.Dialect, op, name string) string {
	return d.QuoteIdentifier(mustIdent(op, name))
}

// validIdent 接受 name 或 schema.name 形式，每段为 [A-Za-z_][A-Za-z0-9_]*。
func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || !identStart(part[0]) {
			return false
		}
		for i := 1; i < len(part); i++ {
			if !identStart(part[i]) && (part[i] < '0' || part[i] > '9') {
				return false
			}
		}
	}
	return true
}

func identStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

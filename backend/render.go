package backend

import (
	"fmt"
	"strings"

	"github.com/hatlonely/sqlkv/schema"
)

// columnType 渲染 TYPE、TYPE(len) 或 TYPE(len, scale)
func columnType(f *schema.FieldDefinition) string {
	switch {
	case f.Length < 0:
		return string(f.DataType)
	case f.Scale < 0:
		return fmt.Sprintf("%s(%d)", f.DataType, f.Length)
	default:
		return fmt.Sprintf("%s(%d, %d)", f.DataType, f.Length, f.Scale)
	}
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

// quoteLiteral 单引号包裹，内部单引号加倍
func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func foreignKeyClause(fk *schema.ForeignKeyDefinition, parent string) string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON UPDATE %s ON DELETE %s",
		joinColumns(fk.LocalColumns), parent, joinColumns(fk.ParentColumns), fk.OnUpdate, fk.OnDelete)
}

func quoteWith(q string, name string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

func quoteAll(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdentifier(name)
	}
	return joinColumns(quoted)
}

// upsertColumns 拆分出 key 以外的列
func upsertColumns(key string, columns []string) []string {
	var rest []string
	for _, c := range columns {
		if c != key {
			rest = append(rest, c)
		}
	}
	return rest
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

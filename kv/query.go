package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// SortOrder 排序方向，只允许 ASC 和 DESC
type SortOrder string

const (
	Ascending  SortOrder = "ASC"
	Descending SortOrder = "DESC"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToUpper(strings.TrimSpace(s))) {
	case Ascending:
		return Ascending, nil
	case Descending:
		return Descending, nil
	}
	return "", errors.Wrapf(ErrInvalidArgument, "unsupported sort order [%s]", s)
}

func (o SortOrder) Valid() bool {
	return o == Ascending || o == Descending
}

// keyQuery 组装 SELECT 语句，section 为空时不按 section 过滤
type keyQuery struct {
	column  string
	where   []string
	args    []any
	groupBy string
	orderBy string
	paged   bool
}

func (q *keyQuery) filter(clause string, arg any) *keyQuery {
	q.where = append(q.where, clause)
	q.args = append(q.args, arg)
	return q
}

func (s *Store) newKeyQuery(column, section string) *keyQuery {
	q := &keyQuery{column: column}
	if section != "" {
		q.filter(s.adapter.QuoteIdentifier(columnSection)+" = ?", section)
	}
	return q
}

func (q *keyQuery) build(table string, quote func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", quote(q.column), quote(table))
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	if q.groupBy != "" {
		fmt.Fprintf(&b, " GROUP BY %s", quote(q.groupBy))
	}
	if q.orderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", q.orderBy)
	}
	if q.paged {
		b.WriteString(" LIMIT ? OFFSET ?")
	}
	return b.String()
}

// run 命名空间不存在时返回空列表
func (s *Store) run(ctx context.Context, namespace string, q *keyQuery) ([]string, error) {
	table := s.tableName(namespace)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []string{}, nil
	}
	return s.queryStrings(ctx, q.build(table, s.adapter.QuoteIdentifier), q.args...)
}

// page 在 q 上追加排序和分页，offset 在前 count 在后
func (s *Store) page(q *keyQuery, order SortOrder, offset, count int) error {
	if !order.Valid() {
		return errors.Wrapf(ErrInvalidArgument, "unsupported sort order [%s]", order)
	}
	if offset < 0 || count < 0 {
		return errors.Wrapf(ErrInvalidArgument, "offset and count must not be negative [%d, %d]", offset, count)
	}
	q.orderBy = s.adapter.QuoteIdentifier(columnVariable) + " " + string(order)
	q.paged = true
	q.args = append(q.args, count, offset)
	return nil
}

func pattern(term string) string {
	return "%" + term + "%"
}

// ListSections 命名空间下所有 section，NULL section 返回为空字符串
func (s *Store) ListSections(ctx context.Context, namespace string) ([]string, error) {
	var sections []string
	err := s.observeOperation(ctx, "list_sections", namespace, func(ctx context.Context) error {
		q := &keyQuery{column: columnSection, groupBy: columnSection}
		var err error
		sections, err = s.run(ctx, namespace, q)
		return err
	})
	return sections, err
}

func (s *Store) ListKeys(ctx context.Context, namespace, section string) ([]string, error) {
	var keys []string
	err := s.observeOperation(ctx, "list_keys", namespace, func(ctx context.Context) error {
		var err error
		keys, err = s.run(ctx, namespace, s.newKeyQuery(columnVariable, section))
		return err
	})
	return keys, err
}

// ListKeysOrdered 按 key 排序分页，count 为 0 时返回空列表
func (s *Store) ListKeysOrdered(ctx context.Context, namespace, section string, order SortOrder, offset, count int) ([]string, error) {
	var keys []string
	err := s.observeOperation(ctx, "list_keys_ordered", namespace, func(ctx context.Context) error {
		q := s.newKeyQuery(columnVariable, section)
		if err := s.page(q, order, offset, count); err != nil {
			return err
		}
		var err error
		keys, err = s.run(ctx, namespace, q)
		return err
	})
	return keys, err
}

// SearchKeysByValue 返回 value 包含 term 的 key，term 中的通配符不转义
func (s *Store) SearchKeysByValue(ctx context.Context, namespace, section, term string) ([]string, error) {
	var keys []string
	err := s.observeOperation(ctx, "search_keys_by_value", namespace, func(ctx context.Context) error {
		q := s.newKeyQuery(columnVariable, section).
			filter(s.adapter.QuoteIdentifier(columnValue)+" LIKE ?", pattern(term))
		var err error
		keys, err = s.run(ctx, namespace, q)
		return err
	})
	return keys, err
}

// SearchKeysByKey 返回包含 term 的 key
func (s *Store) SearchKeysByKey(ctx context.Context, namespace, section, term string) ([]string, error) {
	var keys []string
	err := s.observeOperation(ctx, "search_keys_by_key", namespace, func(ctx context.Context) error {
		q := s.newKeyQuery(columnVariable, section).
			filter(s.adapter.QuoteIdentifier(columnVariable)+" LIKE ?", pattern(term))
		var err error
		keys, err = s.run(ctx, namespace, q)
		return err
	})
	return keys, err
}

// SearchKeysOrdered SearchKeysByKey 的排序分页版本
func (s *Store) SearchKeysOrdered(ctx context.Context, namespace, section, term string, order SortOrder, offset, count int) ([]string, error) {
	var keys []string
	err := s.observeOperation(ctx, "search_keys_ordered", namespace, func(ctx context.Context) error {
		q := s.newKeyQuery(columnVariable, section).
			filter(s.adapter.QuoteIdentifier(columnVariable)+" LIKE ?", pattern(term))
		if err := s.page(q, order, offset, count); err != nil {
			return err
		}
		var err error
		keys, err = s.run(ctx, namespace, q)
		return err
	})
	return keys, err
}

package kv

import (
	"context"
	"regexp"
	"strings"

	"github.com/hatlonely/sqlkv/backend"
	"github.com/hatlonely/sqlkv/schema"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Sanitize 将 [A-Za-z0-9_-] 以外的字符替换为 '_'
func Sanitize(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}

// tableName 命名空间对应的物理表名
func (s *Store) tableName(namespace string) string {
	return s.prefix + Sanitize(namespace)
}

// indexName 命名空间上 variable 列索引的名称
func indexName(namespace string) string {
	return Sanitize(namespace) + "_idx"
}

const (
	columnSection  = "section"
	columnVariable = "variable"
	columnValue    = "value"
)

// namespaceTable 命名空间表结构：(section, variable, value)，variable 唯一
func namespaceTable(table string) (*schema.TableDefinition, error) {
	td, err := schema.NewTable(table)
	if err != nil {
		return nil, err
	}
	section, err := td.AddField(columnSection, schema.Text)
	if err != nil {
		return nil, err
	}
	section.Nullable()
	variable, err := td.AddField(columnVariable, schema.VarChar)
	if err != nil {
		return nil, err
	}
	variable.WithLength(255, schema.Unset)
	value, err := td.AddField(columnValue, schema.Text)
	if err != nil {
		return nil, err
	}
	value.Nullable()
	if _, err := td.AddIndex("variable_pk", schema.Primary, columnVariable); err != nil {
		return nil, err
	}
	return td, nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	if s.cache.has(table) {
		return true, nil
	}
	n, err := s.queryInt(ctx, s.adapter.TableExistsSQL(), table)
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.cache.add(table)
	}
	return n > 0, nil
}

// ensureTable 命名空间不存在时创建
func (s *Store) ensureTable(ctx context.Context, table string) error {
	exists, err := s.tableExists(ctx, table)
	if err != nil || exists {
		return err
	}

	td, err := namespaceTable(table)
	if err != nil {
		return err
	}
	if err := backend.CreateTable(ctx, s.adapter, td); err != nil {
		return err
	}
	s.cache.add(table)
	s.logger.InfoContext(ctx, "namespace created", "table", table)
	return nil
}

// AddNamespace 创建命名空间，已存在时为 no-op
func (s *Store) AddNamespace(ctx context.Context, namespace string) error {
	return s.observeOperation(ctx, "add_namespace", namespace, func(ctx context.Context) error {
		return s.ensureTable(ctx, s.tableName(namespace))
	})
}

func (s *Store) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	var exists bool
	err := s.observeOperation(ctx, "namespace_exists", namespace, func(ctx context.Context) error {
		var err error
		exists, err = s.tableExists(ctx, s.tableName(namespace))
		return err
	})
	return exists, err
}

// ListNamespaces 返回所有命名空间（去掉表前缀），顺序由后端决定
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	var namespaces []string
	err := s.observeOperation(ctx, "list_namespaces", "", func(ctx context.Context) error {
		tables, err := s.queryStrings(ctx, s.adapter.ListTablesSQL(), backend.EscapeLike(s.prefix)+"%")
		if err != nil {
			return err
		}
		// SQLite 的 LIKE 不区分大小写
		namespaces = make([]string, 0, len(tables))
		for _, table := range tables {
			if strings.HasPrefix(table, s.prefix) {
				namespaces = append(namespaces, strings.TrimPrefix(table, s.prefix))
			}
		}
		return nil
	})
	return namespaces, err
}

// RemoveNamespace 删除命名空间及其所有数据，不存在时为 no-op
func (s *Store) RemoveNamespace(ctx context.Context, namespace string) error {
	return s.observeOperation(ctx, "remove_namespace", namespace, func(ctx context.Context) error {
		table := s.tableName(namespace)
		exists, err := s.tableExists(ctx, table)
		if err != nil || !exists {
			return err
		}
		return s.ddl(ctx, func(ctx context.Context) error {
			s.cache.remove(table)
			if _, err := s.exec(ctx, s.adapter.DropTableSQL(table)); err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "namespace removed", "table", table)
			return nil
		})
	})
}

// RenameNamespace src 不存在时为 no-op；dst 已存在时先删除 dst（覆盖，不合并）
func (s *Store) RenameNamespace(ctx context.Context, src, dst string) error {
	return s.observeOperation(ctx, "rename_namespace", src, func(ctx context.Context) error {
		srcTable, dstTable := s.tableName(src), s.tableName(dst)
		if srcTable == dstTable {
			return nil
		}

		exists, err := s.tableExists(ctx, srcTable)
		if err != nil || !exists {
			return err
		}

		return s.ddl(ctx, func(ctx context.Context) error {
			s.cache.remove(dstTable)
			if _, err := s.exec(ctx, s.adapter.DropTableSQL(dstTable)); err != nil {
				return err
			}
			s.cache.remove(srcTable)
			if _, err := s.exec(ctx, s.adapter.RenameTableSQL(srcTable, dstTable)); err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "namespace renamed", "from", srcTable, "to", dstTable)
			return nil
		})
	})
}

// BuildIndexes 为每个命名空间的 variable 列建立普通索引，已存在的跳过
func (s *Store) BuildIndexes(ctx context.Context) error {
	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		return err
	}

	return s.observeBatchOperation(ctx, "build_indexes", "", len(namespaces), func(ctx context.Context) error {
		for _, namespace := range namespaces {
			table := s.prefix + namespace
			index := indexName(namespace)

			n, err := s.queryInt(ctx, s.adapter.IndexExistsSQL(), table, index)
			if err != nil {
				return err
			}
			if n > 0 {
				continue
			}

			s.logger.InfoContext(ctx, "indexing namespace", "table", table, "index", index)
			if _, err := s.exec(ctx, s.adapter.CreateIndexSQL(index, table, columnVariable)); err != nil {
				return err
			}
		}
		return nil
	})
}

package kv

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hatlonely/sqlkv/backend"
	"github.com/pkg/errors"
)

// keyPredicate section 为空时只按 variable 匹配
func (s *Store) keyPredicate(section, key string) (string, []any) {
	quote := s.adapter.QuoteIdentifier
	if section == "" {
		return fmt.Sprintf("%s = ?", quote(columnVariable)), []any{key}
	}
	return fmt.Sprintf("%s = ? AND %s = ?", quote(columnSection), quote(columnVariable)), []any{section, key}
}

// HasKey 命名空间不存在时返回 false
func (s *Store) HasKey(ctx context.Context, namespace, section, key string) (bool, error) {
	var found bool
	err := s.observeOperation(ctx, "has_key", namespace, func(ctx context.Context) error {
		table := s.tableName(namespace)
		exists, err := s.tableExists(ctx, table)
		if err != nil || !exists {
			return err
		}

		where, args := s.keyPredicate(section, key)
		n, err := s.queryInt(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.adapter.QuoteIdentifier(table), where), args...)
		if err != nil {
			return err
		}
		found = n > 0
		return nil
	})
	return found, err
}

// GetValue 不存在时返回 ErrKeyNotFound，值为 NULL 时返回空字符串
func (s *Store) GetValue(ctx context.Context, namespace, section, key string) (string, error) {
	var value string
	err := s.observeOperation(ctx, "get_value", namespace, func(ctx context.Context) error {
		table := s.tableName(namespace)
		exists, err := s.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(ErrKeyNotFound, "namespace [%s] not exists", namespace)
		}

		db, err := s.db(ctx)
		if err != nil {
			return err
		}
		where, args := s.keyPredicate(section, key)
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
			s.adapter.QuoteIdentifier(columnValue), s.adapter.QuoteIdentifier(table), where)

		var v sql.NullString
		if err := db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Wrapf(ErrKeyNotFound, "key [%s] in namespace [%s]", key, namespace)
			}
			return backend.WrapStatement(query, err)
		}
		value = v.String
		return nil
	})
	return value, err
}

func (s *Store) upsertSQL(table string) string {
	return s.adapter.UpsertSQL(table, columnVariable, columnSection, columnVariable, columnValue)
}

// SetValue 写入或覆盖，挂起自动提交期间只入队
func (s *Store) SetValue(ctx context.Context, namespace, section, key, value string) error {
	return s.observeOperation(ctx, "set_value", namespace, func(ctx context.Context) error {
		table := s.tableName(namespace)
		if err := s.ensureTable(ctx, table); err != nil {
			return err
		}
		return s.write(ctx, func(tx *backend.Transaction) {
			tx.Enqueue(s.upsertSQL(table), section, key, value)
		})
	})
}

// SetBatchValues keys 与 values 一一对应，长度不一致时不做任何写入
func (s *Store) SetBatchValues(ctx context.Context, namespace, section string, keys, values []string) error {
	if len(keys) != len(values) {
		return errors.Wrapf(ErrInvalidArgument, "keys and values length mismatch [%d != %d]", len(keys), len(values))
	}
	if len(keys) == 0 {
		return nil
	}

	return s.observeBatchOperation(ctx, "set_batch_values", namespace, len(keys), func(ctx context.Context) error {
		table := s.tableName(namespace)
		if err := s.ensureTable(ctx, table); err != nil {
			return err
		}
		return s.write(ctx, func(tx *backend.Transaction) {
			stmt := tx.Enqueue(s.upsertSQL(table))
			for i := range keys {
				stmt.AddBatch(section, keys[i], values[i])
			}
		})
	})
}

// RemoveKey 命名空间不存在时为 no-op
func (s *Store) RemoveKey(ctx context.Context, namespace, section, key string) error {
	return s.observeOperation(ctx, "remove_key", namespace, func(ctx context.Context) error {
		table := s.tableName(namespace)
		exists, err := s.tableExists(ctx, table)
		if err != nil || !exists {
			return err
		}

		where, args := s.keyPredicate(section, key)
		return s.write(ctx, func(tx *backend.Transaction) {
			tx.Enqueue(fmt.Sprintf("DELETE FROM %s WHERE %s", s.adapter.QuoteIdentifier(table), where), args...)
		})
	})
}

// RemoveSection 删除 section 下的所有 key
func (s *Store) RemoveSection(ctx context.Context, namespace, section string) error {
	return s.observeOperation(ctx, "remove_section", namespace, func(ctx context.Context) error {
		table := s.tableName(namespace)
		exists, err := s.tableExists(ctx, table)
		if err != nil || !exists {
			return err
		}

		return s.write(ctx, func(tx *backend.Transaction) {
			tx.Enqueue(fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
				s.adapter.QuoteIdentifier(table), s.adapter.QuoteIdentifier(columnSection)), section)
		})
	})
}

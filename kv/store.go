package kv

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/hatlonely/sqlkv/backend"
	"github.com/hatlonely/sqlkv/cfg"
	"github.com/hatlonely/sqlkv/log"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// Store 基于 SQL 表的三段式键值存储：命名空间 → section → key
// 每个命名空间对应一张表 (section, variable, value)，variable 为主键
type Store struct {
	adapter backend.Adapter
	tx      *backend.Transaction
	prefix  string
	name    string
	timeout time.Duration

	logger  log.Logger
	metrics *metrics
	tracer  trace.Tracer
	cache   *existenceCache

	// mu 保护 suspended 计数和提交决策
	mu        sync.Mutex
	suspended int
}

// New 创建 Store，adapter 只能被一个 Store 使用
func New(adapter backend.Adapter, options *Options) (*Store, error) {
	if adapter == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "adapter cannot be nil")
	}
	if options == nil {
		options = &Options{}
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "kv options: %v", err)
	}
	if err := adapter.Bind(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Store{
		adapter: adapter,
		tx:      backend.NewTransaction(adapter),
		prefix:  adapter.TablePrefix(),
		name:    options.Name,
		timeout: options.StatementTimeout,
		logger:  logger.With("component", options.Name, "backend", adapter.Name()),
		cache:   newExistenceCache(options.ExistenceCacheSize, options.ExistenceCacheTTL),
	}
	if options.EnableMetrics {
		s.metrics = newMetrics(options.Name, options.Registerer)
	}
	if options.EnableTracing {
		s.tracer = newTracer(options.Name)
	}

	return s, nil
}

// Adapter 返回底层后端
func (s *Store) Adapter() backend.Adapter {
	return s.adapter
}

// Logger 带 component 和 backend 字段的日志
func (s *Store) Logger() log.Logger {
	return s.logger
}

// db 按需连接并返回连接
func (s *Store) db(ctx context.Context) (*sql.DB, error) {
	if err := s.adapter.Connect(ctx); err != nil {
		return nil, err
	}
	return s.adapter.DB()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, backend.WrapStatement(query, err)
	}
	return res, nil
}

func (s *Store) queryInt(ctx context.Context, query string, args ...any) (int, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, backend.WrapStatement(query, err)
	}
	return n, nil
}

// queryStrings 查询单列结果，NULL 视为空字符串
func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, backend.WrapStatement(query, err)
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, backend.WrapStatement(query, err)
		}
		result = append(result, v.String)
	}
	if err := rows.Err(); err != nil {
		return nil, backend.WrapStatement(query, err)
	}
	return result, nil
}

// SetAutoCommit false 挂起自动提交（计数加一），true 恢复（计数减一），
// 计数归零时立即提交队列中的写入。调用可以嵌套
func (s *Store) SetAutoCommit(ctx context.Context, enabled bool) error {
	return s.observeOperation(ctx, "set_auto_commit", "", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if !enabled {
			s.suspended++
			return nil
		}
		if s.suspended > 0 {
			s.suspended--
		}
		if s.suspended > 0 {
			return nil
		}
		return s.flushLocked(ctx)
	})
}

// Suspended 当前挂起计数
func (s *Store) Suspended() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.suspended
}

// Batch 在挂起自动提交的状态下执行 fn，结束后恢复并提交
// fn 返回错误时丢弃本次挂起期间未提交的写入
func (s *Store) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.SetAutoCommit(ctx, false); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		if s.suspended > 0 {
			s.suspended--
		}
		if s.suspended == 0 {
			s.tx.Clear()
		}
		s.mu.Unlock()
		return err
	}

	return s.SetAutoCommit(ctx, true)
}

// Commit 忽略挂起计数，立即提交队列中的写入
func (s *Store) Commit(ctx context.Context) error {
	return s.observeOperation(ctx, "commit", "", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		return s.flushLocked(ctx)
	})
}

// write 所有数据写入（包括删除）统一入队，保证提交顺序与调用顺序一致，挂起期间不提交
func (s *Store) write(ctx context.Context, enqueue func(tx *backend.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enqueue(s.tx)
	if s.suspended > 0 {
		return nil
	}
	return s.flushLocked(ctx)
}

// ddl 先提交队列中的写入，再执行结构变更
func (s *Store) ddl(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// flushLocked 提交失败时丢弃队列，避免后续写入反复失败
func (s *Store) flushLocked(ctx context.Context) error {
	pending := s.tx.Len()
	if pending == 0 {
		return nil
	}
	if err := s.adapter.Connect(ctx); err != nil {
		s.tx.Clear()
		s.observeCommit(err)
		return errors.WithMessagef(err, "discarded %d pending statements", pending)
	}

	err := s.tx.Execute(ctx)
	s.observeCommit(err)
	if err != nil {
		s.tx.Clear()
		return errors.WithMessagef(err, "discarded %d pending statements", pending)
	}
	return nil
}

// Pending 待提交的语句数
func (s *Store) Pending() int {
	return s.tx.Len()
}

// Commits 已提交的事务数
func (s *Store) Commits() int64 {
	return s.tx.Commits()
}

// Close 提交剩余写入并关闭连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	flushErr := s.flushLocked(ctx)
	s.suspended = 0
	s.mu.Unlock()

	s.cache.clear()
	if err := s.adapter.Close(); err != nil {
		return err
	}
	return flushErr
}

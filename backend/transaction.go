package backend

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// DBProvider 提供执行语句所用的连接
type DBProvider interface {
	DB() (*sql.DB, error)
}

// Statement 队列中的一条语句，可以追加多组批量参数
type Statement struct {
	tx      *Transaction
	query   string
	params  []any
	batches [][]any
}

// AddBatch 追加一组参数，执行时整条语句按每组参数各执行一次
// 调用过 AddBatch 后，Enqueue 时的参数不再单独执行
func (s *Statement) AddBatch(params ...any) *Statement {
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()

	s.batches = append(s.batches, params)
	return s
}

func (s *Statement) SQL() string {
	return s.query
}

func (s *Statement) exec(ctx context.Context, tx *sql.Tx) error {
	if len(s.batches) == 0 {
		_, err := tx.ExecContext(ctx, s.query, s.params...)
		return WrapStatement(s.query, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.query)
	if err != nil {
		return WrapStatement(s.query, err)
	}
	defer stmt.Close()

	for _, params := range s.batches {
		if _, err := stmt.ExecContext(ctx, params...); err != nil {
			return WrapStatement(s.query, err)
		}
	}
	return nil
}

// Transaction 语句队列，Execute 时在一个数据库事务中按入队顺序执行
// 执行成功后清空队列；失败时回滚并保留队列，由调用方决定重试或 Clear
type Transaction struct {
	mu         sync.Mutex
	provider   DBProvider
	statements []*Statement
	commits    atomic.Int64
}

func NewTransaction(provider DBProvider) *Transaction {
	return &Transaction{provider: provider}
}

// Enqueue 追加一条语句
func (t *Transaction) Enqueue(query string, params ...any) *Statement {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &Statement{tx: t, query: query, params: params}
	t.statements = append(t.statements, s)
	return s
}

// Execute 空队列为 no-op
func (t *Transaction) Execute(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.statements) == 0 {
		return nil
	}

	db, err := t.provider.DB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return WrapStatement("BEGIN", err)
	}

	for _, s := range t.statements {
		if err := s.exec(ctx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return errors.WithMessagef(err, "rollback failed: %v", rbErr)
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return WrapStatement("COMMIT", err)
	}

	t.statements = nil
	t.commits.Add(1)
	return nil
}

// Clear 丢弃所有待执行语句
func (t *Transaction) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statements = nil
}

// Len 待执行语句数
func (t *Transaction) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.statements)
}

// Commits 成功提交的次数
func (t *Transaction) Commits() int64 {
	return t.commits.Load()
}

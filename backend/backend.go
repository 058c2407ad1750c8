package backend

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatlonely/sqlkv/log"
	"github.com/hatlonely/sqlkv/schema"
	"github.com/pkg/errors"
)

// DefaultTablePrefix 所有托管表的默认前缀
const DefaultTablePrefix = "kv_"

// Dialect 方言相关的 SQL 片段，方法参数中的表名、索引名均为未引用的原始名称
type Dialect interface {
	// QuoteIdentifier 引用标识符
	QuoteIdentifier(name string) string

	// TableExistsSQL 参数：表名，返回一行计数
	TableExistsSQL() string
	// ListTablesSQL 参数：LIKE 模式（反斜杠转义），返回表名
	ListTablesSQL() string
	// IndexExistsSQL 参数：表名、索引名，返回一行计数
	IndexExistsSQL() string

	CreateIndexSQL(index, table string, columns ...string) string
	RenameTableSQL(src, dst string) string
	DropTableSQL(table string) string

	// UpsertSQL 按 columns 顺序绑定参数，key 冲突时更新其余列
	UpsertSQL(table, key string, columns ...string) string

	// RenderCreateTable 校验并渲染建表语句，可能包含多条
	RenderCreateTable(td *schema.TableDefinition) ([]string, error)
}

// Adapter 一个数据库后端：方言 + 单连接
// 所有读写都经过同一个连接，因此天然串行
type Adapter interface {
	Dialect

	Name() string
	TablePrefix() string

	// Connect 按需建立连接，连接健康时为 no-op
	Connect(ctx context.Context) error
	Connected(ctx context.Context) bool
	// DB 返回当前连接，未连接时返回 ErrConnectionFailure
	DB() (*sql.DB, error)
	// Bind 将适配器绑定到一个使用者，第二次调用返回 ErrAlreadyInitialized
	Bind() error
	Close() error
}

// connector 各后端共用的连接管理
type connector struct {
	name        string
	driver      string
	dsn         string
	prefix      string
	pingTimeout time.Duration
	logger      log.Logger

	mu    sync.Mutex
	db    *sql.DB
	bound atomic.Bool
}

func (c *connector) Name() string {
	return c.name
}

func (c *connector) TablePrefix() string {
	return c.prefix
}

func (c *connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		err := c.ping(ctx, c.db)
		if err == nil {
			return nil
		}
		// 唯一连接被进行中的事务占用时 ping 会等待超时，此时连接仍然有效
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			c.logger.DebugContext(ctx, "connection busy, keep current", "backend", c.name, "error", err)
			return nil
		}
		c.logger.WarnContext(ctx, "connection lost, reconnecting", "backend", c.name, "error", err)
		_ = c.db.Close()
		c.db = nil
	}

	db, err := sql.Open(c.driver, c.dsn)
	if err != nil {
		return &ConnectionError{Backend: c.name, Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := c.ping(ctx, db); err != nil {
		_ = db.Close()
		return &ConnectionError{Backend: c.name, Err: err}
	}

	c.db = db
	c.logger.InfoContext(ctx, "database connected", "backend", c.name)
	return nil
}

func (c *connector) ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

func (c *connector) Connected(ctx context.Context) bool {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()

	return db != nil && c.ping(ctx, db) == nil
}

func (c *connector) DB() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil, &ConnectionError{Backend: c.name, Err: errors.New("not connected")}
	}
	return c.db, nil
}

func (c *connector) Bind() error {
	if !c.bound.CompareAndSwap(false, true) {
		return errors.Wrapf(ErrAlreadyInitialized, "backend %s", c.name)
	}
	return nil
}

func (c *connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return &ConnectionError{Backend: c.name, Err: err}
	}
	c.logger.Info("database closed", "backend", c.name)
	return nil
}

// CreateTable 渲染 td 并在一个事务中执行所有建表语句
func CreateTable(ctx context.Context, adapter Adapter, td *schema.TableDefinition) error {
	statements, err := adapter.RenderCreateTable(td)
	if err != nil {
		return err
	}
	if err := adapter.Connect(ctx); err != nil {
		return err
	}

	tx := NewTransaction(adapter)
	for _, s := range statements {
		tx.Enqueue(s)
	}
	if err := tx.Execute(ctx); err != nil {
		tx.Clear()
		return errors.WithMessagef(err, "create table %s", td.Name())
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike 转义 LIKE 通配符，转义字符为反斜杠
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

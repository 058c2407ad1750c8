package backend

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/sqlkv/cfg"
	"github.com/hatlonely/sqlkv/log"
	"github.com/hatlonely/sqlkv/schema"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// sqliteDriver 每个新连接上执行 temp_store = MEMORY
const sqliteDriver = "sqlite3_sqlkv"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec("PRAGMA temp_store = MEMORY;", []driver.Value{})
			return err
		},
	})
}

type SQLiteOptions struct {
	// DBName 数据库文件，":memory:" 为内存库
	DBName string `cfg:"dbname" def:"sqlkv.db" validate:"required"`
	// CacheSize 为空时使用 -50000，0 为合法值
	CacheSize *int `cfg:"cachesize" def:"-50000"`
	// SafeWrite 为 true 时 synchronous=FULL，否则 NORMAL
	SafeWrite bool `cfg:"safewrite"`
	// Journal 为 true 时 journal_mode=TRUNCATE，否则 OFF
	Journal *bool `cfg:"journal" def:"true"`

	PingTimeout time.Duration `cfg:"pingTimeout" def:"5s"`
	TablePrefix string        `cfg:"tablePrefix" def:"kv_"`

	Logger log.Logger `cfg:"-"`
}

func (o *SQLiteOptions) cacheSize() int {
	if o.CacheSize == nil {
		return -50000
	}
	return *o.CacheSize
}

func (o *SQLiteOptions) journal() bool {
	return o.Journal == nil || *o.Journal
}

func (o *SQLiteOptions) synchronousMode() string {
	if o.SafeWrite {
		return "FULL"
	}
	return "NORMAL"
}

func (o *SQLiteOptions) journalMode() string {
	if o.journal() {
		return "TRUNCATE"
	}
	return "OFF"
}

// DSN 转换为驱动使用的 DSN，写事务使用 BEGIN IMMEDIATE
func (o *SQLiteOptions) DSN() string {
	params := url.Values{}
	params.Set("_cache_size", strconv.Itoa(o.cacheSize()))
	params.Set("_journal_mode", o.journalMode())
	params.Set("_synchronous", o.synchronousMode())
	params.Set("_txlock", "immediate")
	params.Set("_foreign_keys", "1")

	name := o.DBName
	if !strings.HasPrefix(name, "file:") {
		name = "file:" + name
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + params.Encode()
}

type SQLite struct {
	connector
}

// NewSQLite 位置参数：[configFile?]
func NewSQLite(params ...string) (*SQLite, error) {
	path := ""
	if len(params) > 0 {
		path = params[0]
	}
	return NewSQLiteWithOptions(LoadSQLiteConfig(path, log.Default()))
}

func NewSQLiteWithOptions(options *SQLiteOptions) (*SQLite, error) {
	if options == nil {
		return nil, errors.Wrap(ErrInvalidParameter, "options cannot be nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.Wrapf(ErrInvalidParameter, "sqlite options: %v", err)
	}

	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &SQLite{
		connector: connector{
			name:        "sqlite",
			driver:      sqliteDriver,
			dsn:         options.DSN(),
			prefix:      options.TablePrefix,
			pingTimeout: options.PingTimeout,
			logger:      logger.With("backend", "sqlite", "dbname", options.DBName),
		},
	}, nil
}

func (s *SQLite) QuoteIdentifier(name string) string {
	return quoteWith(`"`, name)
}

func (s *SQLite) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
}

func (s *SQLite) ListTablesSQL() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ESCAPE '\'`
}

func (s *SQLite) IndexExistsSQL() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?"
}

func (s *SQLite) CreateIndexSQL(index, table string, columns ...string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);", s.QuoteIdentifier(index), s.QuoteIdentifier(table), quoteAll(s, columns))
}

func (s *SQLite) RenameTableSQL(src, dst string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", s.QuoteIdentifier(src), s.QuoteIdentifier(dst))
}

func (s *SQLite) DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", s.QuoteIdentifier(table))
}

func (s *SQLite) UpsertSQL(table, key string, columns ...string) string {
	var updates []string
	for _, c := range upsertColumns(key, columns) {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", s.QuoteIdentifier(c), s.QuoteIdentifier(c)))
	}
	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) %s;",
		s.QuoteIdentifier(table), quoteAll(s, columns), placeholders(len(columns)), s.QuoteIdentifier(key), action)
}

// RenderCreateTable PRIMARY/UNIQUE 索引内联为匿名 UNIQUE 约束，INDEX 渲染为单独的 CREATE INDEX，
// SQLite 不支持 FULLTEXT 索引，忽略
func (s *SQLite) RenderCreateTable(td *schema.TableDefinition) ([]string, error) {
	if err := td.Validate(); err != nil {
		return nil, err
	}

	table := s.QuoteIdentifier(td.Name())

	var defs []string
	for _, f := range td.Fields {
		// 自增列必须是 INTEGER PRIMARY KEY
		typ := columnType(f)
		if f.AutoIncrement {
			typ = string(schema.Integer)
		}
		parts := []string{f.Name, typ}
		if f.NotNull {
			parts = append(parts, "NOT NULL")
		}
		if f.AutoIncrement {
			parts = append(parts, "PRIMARY KEY AUTOINCREMENT")
		}
		if f.DefaultValue != nil {
			parts = append(parts, "DEFAULT "+quoteLiteral(*f.DefaultValue))
		}
		defs = append(defs, strings.Join(parts, " "))
	}

	var indexes []string
	for _, idx := range td.Indexes {
		switch idx.Type {
		case schema.Primary:
			defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", joinColumns(idx.Columns)))
		case schema.Unique:
			defs = append(defs, fmt.Sprintf("UNIQUE (%s)", joinColumns(idx.Columns)))
		case schema.Index:
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
				s.QuoteIdentifier(td.Name()+"_INDEX_"+idx.Name), table, joinColumns(idx.Columns)))
		case schema.FullText:
			s.logger.Debug("fulltext index ignored", "table", td.Name(), "index", idx.Name)
		}
	}

	for _, fk := range td.ForeignKeys {
		defs = append(defs, foreignKeyClause(fk, s.QuoteIdentifier(s.prefix+fk.ParentTable)))
	}

	create := "CREATE TABLE IF NOT EXISTS"
	if td.Temporary {
		create = "CREATE TEMPORARY TABLE IF NOT EXISTS"
	}

	statements := []string{fmt.Sprintf("%s %s (%s);", create, table, strings.Join(defs, ", "))}
	return append(statements, indexes...), nil
}

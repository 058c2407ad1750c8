package backend

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/sqlkv/cfg"
	"github.com/hatlonely/sqlkv/log"
	"github.com/hatlonely/sqlkv/schema"
	"github.com/pkg/errors"
)

type MySQLOptions struct {
	// URL 主机或 URL，如 "db:3306/app"、"mysql://db/app?tls=true"
	URL      string `cfg:"url" validate:"required"`
	Username string `cfg:"username" validate:"required"`
	Password string `cfg:"password" validate:"required"`
	// Schema 非空时覆盖 URL 中的数据库名
	Schema string `cfg:"schema"`

	Charset      string        `cfg:"charset" def:"utf8mb4"`
	Timeout      time.Duration `cfg:"timeout" def:"10s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"30s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"30s"`
	PingTimeout  time.Duration `cfg:"pingTimeout" def:"5s"`
	TablePrefix  string        `cfg:"tablePrefix" def:"kv_"`

	Logger log.Logger `cfg:"-"`
}

// ParseMySQLParams 位置参数：[hostOrUrl, user, pass, schema?]
func ParseMySQLParams(params ...string) (*MySQLOptions, error) {
	if len(params) < 3 {
		return nil, errors.Wrapf(ErrInvalidParameter, "mysql requires url, user and password, got %d params", len(params))
	}
	for i, name := range []string{"url", "user", "password"} {
		if strings.TrimSpace(params[i]) == "" {
			return nil, errors.Wrapf(ErrInvalidParameter, "mysql %s is empty", name)
		}
	}

	options := &MySQLOptions{
		URL:      params[0],
		Username: params[1],
		Password: params[2],
	}
	if len(params) > 3 {
		options.Schema = params[3]
	}
	return options, nil
}

// DSN 转换为驱动使用的 DSN
func (o *MySQLOptions) DSN() (string, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(o.URL), "jdbc:")
	if !strings.HasPrefix(raw, "mysql://") {
		raw = "mysql://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidParameter, "invalid mysql url %q: %v", o.URL, err)
	}
	if u.Host == "" {
		return "", errors.Wrapf(ErrInvalidParameter, "mysql url %q has no host", o.URL)
	}

	c := mysql.NewConfig()
	c.User = o.Username
	c.Passwd = o.Password
	c.Net = "tcp"
	c.Addr = u.Host
	if u.Port() == "" {
		c.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	c.DBName = strings.TrimPrefix(u.Path, "/")
	if o.Schema != "" {
		c.DBName = o.Schema
	}
	c.ParseTime = true
	c.Timeout = o.Timeout
	c.ReadTimeout = o.ReadTimeout
	c.WriteTimeout = o.WriteTimeout

	params := map[string]string{}
	if o.Charset != "" {
		params["charset"] = o.Charset
	}
	for k, v := range u.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if len(params) > 0 {
		c.Params = params
	}

	return c.FormatDSN(), nil
}

type MySQL struct {
	connector
}

func NewMySQL(params ...string) (*MySQL, error) {
	options, err := ParseMySQLParams(params...)
	if err != nil {
		return nil, err
	}
	return NewMySQLWithOptions(options)
}

func NewMySQLWithOptions(options *MySQLOptions) (*MySQL, error) {
	if options == nil {
		return nil, errors.Wrap(ErrInvalidParameter, "options cannot be nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.Wrapf(ErrInvalidParameter, "mysql options: %v", err)
	}

	dsn, err := options.DSN()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &MySQL{
		connector: connector{
			name:        "mysql",
			driver:      "mysql",
			dsn:         dsn,
			prefix:      options.TablePrefix,
			pingTimeout: options.PingTimeout,
			logger:      logger.With("backend", "mysql"),
		},
	}, nil
}

func (m *MySQL) QuoteIdentifier(name string) string {
	return quoteWith("`", name)
}

func (m *MySQL) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}

func (m *MySQL) ListTablesSQL() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name LIKE ?"
}

func (m *MySQL) IndexExistsSQL() string {
	return "SELECT COUNT(*) FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?"
}

// CreateIndexSQL MySQL 不支持 CREATE INDEX IF NOT EXISTS，调用方需先检查 IndexExistsSQL
func (m *MySQL) CreateIndexSQL(index, table string, columns ...string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s);", m.QuoteIdentifier(index), m.QuoteIdentifier(table), quoteAll(m, columns))
}

func (m *MySQL) RenameTableSQL(src, dst string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", m.QuoteIdentifier(src), m.QuoteIdentifier(dst))
}

func (m *MySQL) DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", m.QuoteIdentifier(table))
}

func (m *MySQL) UpsertSQL(table, key string, columns ...string) string {
	var updates []string
	for _, c := range upsertColumns(key, columns) {
		updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", m.QuoteIdentifier(c), m.QuoteIdentifier(c)))
	}
	if len(updates) == 0 {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s);",
			m.QuoteIdentifier(table), quoteAll(m, columns), placeholders(len(columns)))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s;",
		m.QuoteIdentifier(table), quoteAll(m, columns), placeholders(len(columns)), strings.Join(updates, ", "))
}

// RenderCreateTable 所有索引和外键内联在建表语句中，临时表使用 MEMORY 引擎
func (m *MySQL) RenderCreateTable(td *schema.TableDefinition) ([]string, error) {
	if err := td.Validate(); err != nil {
		return nil, err
	}

	var defs []string
	for _, f := range td.Fields {
		parts := []string{f.Name, columnType(f)}
		if f.Unsigned && f.DataType.Numeric() {
			parts = append(parts, "UNSIGNED")
		}
		if f.NotNull {
			parts = append(parts, "NOT NULL")
		}
		if f.AutoIncrement {
			parts = append(parts, "AUTO_INCREMENT PRIMARY KEY")
		}
		if f.DefaultValue != nil {
			parts = append(parts, "DEFAULT "+quoteLiteral(*f.DefaultValue))
		}
		defs = append(defs, strings.Join(parts, " "))
	}

	for _, idx := range td.Indexes {
		if idx.Type == schema.Primary {
			defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", joinColumns(idx.Columns)))
			continue
		}
		defs = append(defs, fmt.Sprintf("%s %s (%s)", idx.Type, idx.Name, joinColumns(idx.Columns)))
	}

	for _, fk := range td.ForeignKeys {
		defs = append(defs, foreignKeyClause(fk, m.QuoteIdentifier(m.prefix+fk.ParentTable)))
	}

	engine := "InnoDB"
	if td.Temporary {
		engine = "MEMORY"
	}

	return []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE=%s;",
		m.QuoteIdentifier(td.Name()), strings.Join(defs, ", "), engine)}, nil
}

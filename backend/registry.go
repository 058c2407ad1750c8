package backend

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/hatlonely/sqlkv/log"
	"github.com/pkg/errors"
)

// Factory 根据位置参数创建后端
type Factory func(params ...string) (Adapter, error)

var factories sync.Map

func init() {
	MustRegister("mysql", func(params ...string) (Adapter, error) {
		return NewMySQL(params...)
	})
	MustRegister("sqlite", func(params ...string) (Adapter, error) {
		return NewSQLite(params...)
	})
}

func isSameFunc(f1, f2 Factory) bool {
	return reflect.ValueOf(f1).Pointer() == reflect.ValueOf(f2).Pointer()
}

// Register 注册后端，名称不区分大小写
// 同名重复注册相同函数为 no-op，注册不同函数返回错误
func Register(name string, factory Factory) error {
	if factory == nil {
		return errors.Wrap(ErrInvalidParameter, "factory cannot be nil")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return errors.Wrap(ErrInvalidParameter, "backend name cannot be empty")
	}

	if existing, loaded := factories.LoadOrStore(key, factory); loaded {
		if isSameFunc(existing.(Factory), factory) {
			return nil
		}
		return errors.Errorf("backend %s already registered with different factory", key)
	}
	return nil
}

func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// New 按名称创建后端
func New(name string, params ...string) (Adapter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	value, ok := factories.Load(key)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q, available: %s", name, strings.Join(Names(), ", "))
	}
	return value.(Factory)(params...)
}

// Names 已注册的后端名称，按字典序
func Names() []string {
	var names []string
	factories.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Options 后端配置，MySQL/SQLite 非空时优先于 Params
type Options struct {
	Type   string   `cfg:"type" def:"sqlite" validate:"required"`
	Params []string `cfg:"params"`
	// TablePrefix 非空时覆盖各后端的表前缀
	TablePrefix string `cfg:"tablePrefix"`

	MySQL  *MySQLOptions  `cfg:"mysql"`
	SQLite *SQLiteOptions `cfg:"sqlite"`

	Logger log.Logger `cfg:"-"`
}

func NewWithOptions(options *Options) (Adapter, error) {
	if options == nil {
		return nil, errors.Wrap(ErrInvalidParameter, "options cannot be nil")
	}

	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	switch strings.ToLower(options.Type) {
	case "mysql":
		mysqlOptions := options.MySQL
		if mysqlOptions == nil {
			var err error
			if mysqlOptions, err = ParseMySQLParams(options.Params...); err != nil {
				return nil, err
			}
		}
		if options.TablePrefix != "" {
			mysqlOptions.TablePrefix = options.TablePrefix
		}
		if mysqlOptions.Logger == nil {
			mysqlOptions.Logger = logger
		}
		return NewMySQLWithOptions(mysqlOptions)
	case "sqlite":
		sqliteOptions := options.SQLite
		if sqliteOptions == nil {
			path := ""
			if len(options.Params) > 0 {
				path = options.Params[0]
			}
			sqliteOptions = LoadSQLiteConfig(path, logger)
		}
		if options.TablePrefix != "" {
			sqliteOptions.TablePrefix = options.TablePrefix
		}
		if sqliteOptions.Logger == nil {
			sqliteOptions.Logger = logger
		}
		return NewSQLiteWithOptions(sqliteOptions)
	}

	return New(options.Type, options.Params...)
}

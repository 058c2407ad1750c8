package schema

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidDefinition = errors.New("invalid definition")
)

// Unset 表示 Length/Scale 未设置
const Unset = -1

// DataType 字段数据类型
type DataType string

const (
	TinyInt   DataType = "TINYINT"
	SmallInt  DataType = "SMALLINT"
	MediumInt DataType = "MEDIUMINT"
	Integer   DataType = "INTEGER"
	BigInt    DataType = "BIGINT"
	Double    DataType = "DOUBLE"
	Float     DataType = "FLOAT"
	Decimal   DataType = "DECIMAL"
	DateTime  DataType = "DATETIME"
	VarChar   DataType = "VARCHAR"
	Text      DataType = "TEXT"
)

// Valid 是否为已知的数据类型
func (t DataType) Valid() bool {
	switch t {
	case TinyInt, SmallInt, MediumInt, Integer, BigInt, Double, Float, Decimal, DateTime, VarChar, Text:
		return true
	}
	return false
}

// Numeric 是否为数值类型，只有数值类型支持 UNSIGNED
func (t DataType) Numeric() bool {
	switch t {
	case TinyInt, SmallInt, MediumInt, Integer, BigInt, Double, Float, Decimal:
		return true
	}
	return false
}

// IndexType 索引类型
type IndexType string

const (
	Primary  IndexType = "PRIMARY"
	Index    IndexType = "INDEX"
	Unique   IndexType = "UNIQUE"
	FullText IndexType = "FULLTEXT"
)

func (t IndexType) Valid() bool {
	switch t {
	case Primary, Index, Unique, FullText:
		return true
	}
	return false
}

// Action 外键的 ON UPDATE / ON DELETE 动作
// NoAction 在部分数据库（如 MySQL）中等同于 Restrict
type Action string

const (
	Restrict Action = "RESTRICT"
	Cascade  Action = "CASCADE"
	SetNull  Action = "SET NULL"
	NoAction Action = "NO ACTION"
)

func (a Action) Valid() bool {
	switch a {
	case Restrict, Cascade, SetNull, NoAction:
		return true
	}
	return false
}

// TableDefinition 与数据库无关的建表描述，由具体后端渲染为 DDL
type TableDefinition struct {
	name string

	// Temporary 是否为临时（内存）表
	Temporary   bool
	Fields      []*FieldDefinition
	Indexes     []*IndexDefinition
	ForeignKeys []*ForeignKeyDefinition
}

// FieldDefinition 字段定义
type FieldDefinition struct {
	Name     string
	DataType DataType
	// Length 长度或精度，Unset 表示不渲染
	Length int
	// Scale 小数位数，仅在 Length 设置时生效
	Scale    int
	Unsigned bool
	NotNull  bool
	// AutoIncrement 自增字段，同时视为唯一主键
	AutoIncrement bool
	// DefaultValue 默认值，nil 表示不设置
	DefaultValue *string
}

// IndexDefinition 索引定义
type IndexDefinition struct {
	Name    string
	Type    IndexType
	Columns []string
}

// ForeignKeyDefinition 外键定义，ParentTable 不含表前缀
type ForeignKeyDefinition struct {
	LocalColumns  []string
	ParentTable   string
	ParentColumns []string
	OnUpdate      Action
	OnDelete      Action
}

// NewTable 创建表定义，表名创建后不可修改
func NewTable(name string) (*TableDefinition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Wrap(ErrInvalidIdentifier, "blank table name")
	}
	return &TableDefinition{name: name}, nil
}

func (t *TableDefinition) Name() string {
	return t.name
}

// AddField 添加字段，默认 UNSIGNED、NOT NULL，长度和小数位未设置
func (t *TableDefinition) AddField(name string, dataType DataType) (*FieldDefinition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Wrapf(ErrInvalidIdentifier, "blank field name in table %s", t.name)
	}

	f := &FieldDefinition{
		Name:     name,
		DataType: dataType,
		Length:   Unset,
		Scale:    Unset,
		Unsigned: true,
		NotNull:  true,
	}
	t.Fields = append(t.Fields, f)
	return f, nil
}

// AddIndex 添加索引，columns 可以带长度属性，如 "name(32)"
func (t *TableDefinition) AddIndex(name string, indexType IndexType, columns ...string) (*IndexDefinition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Wrapf(ErrInvalidIdentifier, "blank index name in table %s", t.name)
	}

	idx := &IndexDefinition{
		Name:    name,
		Type:    indexType,
		Columns: append([]string(nil), columns...),
	}
	t.Indexes = append(t.Indexes, idx)
	return idx, nil
}

// AddForeignKey 添加外键，默认 ON UPDATE / ON DELETE 均为 RESTRICT
func (t *TableDefinition) AddForeignKey(localColumns []string, parentTable string, parentColumns []string) *ForeignKeyDefinition {
	fk := &ForeignKeyDefinition{
		LocalColumns:  append([]string(nil), localColumns...),
		ParentTable:   parentTable,
		ParentColumns: append([]string(nil), parentColumns...),
		OnUpdate:      Restrict,
		OnDelete:      Restrict,
	}
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return fk
}

// WithLength 设置长度和小数位
func (f *FieldDefinition) WithLength(length, scale int) *FieldDefinition {
	f.Length = length
	f.Scale = scale
	return f
}

// WithDefault 设置默认值
func (f *FieldDefinition) WithDefault(value string) *FieldDefinition {
	f.DefaultValue = &value
	return f
}

// Nullable 允许字段为 NULL
func (f *FieldDefinition) Nullable() *FieldDefinition {
	f.NotNull = false
	return f
}

// Signed 取消 UNSIGNED
func (f *FieldDefinition) Signed() *FieldDefinition {
	f.Unsigned = false
	return f
}

// Increment 标记为自增主键
func (f *FieldDefinition) Increment() *FieldDefinition {
	f.AutoIncrement = true
	return f
}

// Actions 设置外键的更新和删除动作
func (fk *ForeignKeyDefinition) Actions(onUpdate, onDelete Action) *ForeignKeyDefinition {
	fk.OnUpdate = onUpdate
	fk.OnDelete = onDelete
	return fk
}

// Validate 在任何 I/O 之前校验表定义
func (t *TableDefinition) Validate() error {
	if strings.TrimSpace(t.name) == "" {
		return errors.Wrap(ErrInvalidIdentifier, "blank table name")
	}
	if len(t.Fields) == 0 {
		return errors.Wrapf(ErrInvalidDefinition, "no fields in table definition %s", t.name)
	}

	autoIncrements := 0
	for _, f := range t.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return errors.Wrapf(ErrInvalidIdentifier, "blank field name in table %s", t.name)
		}
		if !f.DataType.Valid() {
			return errors.Wrapf(ErrInvalidDefinition, "field %s has unknown data type %q", f.Name, f.DataType)
		}
		if f.DataType == VarChar && f.Length < 0 {
			return errors.Wrapf(ErrInvalidDefinition, "field %s: VARCHAR requires a length", f.Name)
		}
		if f.Scale >= 0 && f.Length < 0 {
			return errors.Wrapf(ErrInvalidDefinition, "field %s: scale without length", f.Name)
		}
		if f.AutoIncrement {
			autoIncrements++
		}
	}
	if autoIncrements > 1 {
		return errors.Wrapf(ErrInvalidDefinition, "table %s has %d auto increment fields", t.name, autoIncrements)
	}

	for _, idx := range t.Indexes {
		if strings.TrimSpace(idx.Name) == "" {
			return errors.Wrapf(ErrInvalidIdentifier, "blank index name in table %s", t.name)
		}
		if !idx.Type.Valid() {
			return errors.Wrapf(ErrInvalidDefinition, "index %s has unknown type %q", idx.Name, idx.Type)
		}
		if len(idx.Columns) == 0 {
			return errors.Wrapf(ErrInvalidDefinition, "index %s has no columns", idx.Name)
		}
		if idx.Type == Primary && autoIncrements > 0 {
			return errors.Wrapf(ErrInvalidDefinition, "table %s: auto increment field is already the primary key", t.name)
		}
	}

	for _, fk := range t.ForeignKeys {
		if strings.TrimSpace(fk.ParentTable) == "" {
			return errors.Wrapf(ErrInvalidIdentifier, "blank foreign key parent table in table %s", t.name)
		}
		if len(fk.LocalColumns) == 0 || len(fk.LocalColumns) != len(fk.ParentColumns) {
			return errors.Wrapf(ErrInvalidDefinition, "foreign key to %s: column count mismatch", fk.ParentTable)
		}
		if !fk.OnUpdate.Valid() || !fk.OnDelete.Valid() {
			return errors.Wrapf(ErrInvalidDefinition, "foreign key to %s: unknown action", fk.ParentTable)
		}
	}

	return nil
}

package kv

import (
	"time"

	"github.com/hatlonely/sqlkv/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrKeyNotFound     = errors.New("key not found")
)

type Options struct {
	// StatementTimeout 单个操作的超时时间
	StatementTimeout time.Duration `cfg:"statementTimeout" def:"10s"`

	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing"`

	// Name 组件名称，作为指标名前缀、日志 component 字段和 tracer 名称
	Name string `cfg:"name" def:"sqlkv" validate:"required"`

	// ExistenceCacheSize 命名空间存在性缓存大小（字节），0 表示不缓存
	ExistenceCacheSize int `cfg:"existenceCacheSize"`

	// ExistenceCacheTTL 缓存有效期
	ExistenceCacheTTL time.Duration `cfg:"existenceCacheTTL" def:"1m"`

	// Registerer 指标注册器，为空时使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer `cfg:"-"`

	Logger log.Logger `cfg:"-"`
}

package loader

import (
	"context"
)

// ChangeType 数据加载时数据的变更类型
type ChangeType int

const (
	ChangeTypeUnknown ChangeType = 0    // 未知
	ChangeTypeAdd     ChangeType = iota // 新增
	ChangeTypeUpdate                    // 更新
	ChangeTypeDelete                    // 删除
)

// Record 文件中的一行
type Record struct {
	Change  ChangeType
	Section string
	Key     string
	Value   string
}

// Stream 用于遍历一次加载的数据
type Stream interface {
	Each(func(record Record) error) error
}

// Listener 用于监听数据变更
type Listener func(stream Stream) error

// Loader 用于加载数据
type Loader interface {
	// OnChange 注册数据变更监听，注册时立即触发一次
	OnChange(listener Listener) error
	// Close 停止监听
	Close() error
}

// Writer 数据写入目标，*kv.Store 实现了该接口
type Writer interface {
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
	SetBatchValues(ctx context.Context, namespace, section string, keys, values []string) error
	RemoveKey(ctx context.Context, namespace, section, key string) error
}

package log

import (
	"io"
	"sync/atomic"
)

var defaultLogger atomic.Value

func init() {
	// 默认向 stderr 输出 text 格式日志，stdout 留给命令输出
	l, err := NewSLogWithOptions(&SLogOptions{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(holder{l})
}

type holder struct {
	Logger
}

func Default() Logger {
	return defaultLogger.Load().(holder).Logger
}

// SetDefault 替换全局默认日志器，nil 忽略
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(holder{l})
}

// Discard 丢弃所有输出的日志器
func Discard() Logger {
	l, _ := NewSLogWithWriter(io.Discard, &SLogOptions{Level: "error"})
	return l
}

// FileLoader 从文本文件加载数据，支持监听文件变化
// 每行一条记录，格式由 LineParser 定义

package loader

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hatlonely/sqlkv/cfg"
	"github.com/hatlonely/sqlkv/log"
	"github.com/pkg/errors"
)

type FileLoaderOptions struct {
	FilePath string            `cfg:"filePath" validate:"required"`
	Parser   LineParserOptions `cfg:"parser"`
	// 是否跳过脏数据（默认遇到脏数据时，直接报错并返回；启用这个选项的话，仅打印错误日志，不提前返回）
	SkipDirtyRows        bool `cfg:"skipDirtyRows"`
	ScannerBufferMinSize int  `cfg:"scannerBufferMinSize" def:"65536"`
	ScannerBufferMaxSize int  `cfg:"scannerBufferMaxSize" def:"4194304"`
	// 是否在首次加载后继续监听文件变化
	Watch bool `cfg:"watch"`

	Logger log.Logger `cfg:"-"`
}

type FileLoader struct {
	filePath             string
	parser               *LineParser
	skipDirtyRows        bool
	scannerBufferMinSize int
	scannerBufferMaxSize int
	watch                bool

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	logger log.Logger
}

func NewFileLoaderWithOptions(options *FileLoaderOptions) (*FileLoader, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.Wrap(err, "invalid file loader options")
	}

	p, err := NewLineParserWithOptions(&options.Parser)
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	filePath, err := filepath.Abs(options.FilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", options.FilePath)
	}

	return &FileLoader{
		filePath:             filePath,
		parser:               p,
		skipDirtyRows:        options.SkipDirtyRows,
		scannerBufferMinSize: options.ScannerBufferMinSize,
		scannerBufferMaxSize: options.ScannerBufferMaxSize,
		watch:                options.Watch,
		done:                 make(chan struct{}),
		logger:               logger.WithGroup("fileLoader").With("filePath", filePath),
	}, nil
}

func (l *FileLoader) stream() *FileStream {
	return &FileStream{
		filePath:             l.filePath,
		parser:               l.parser,
		skipDirtyRows:        l.skipDirtyRows,
		scannerBufferMinSize: l.scannerBufferMinSize,
		scannerBufferMaxSize: l.scannerBufferMaxSize,
		logger:               l.logger.WithGroup("fileStream"),
	}
}

func (l *FileLoader) OnChange(listener Listener) error {
	// 加载初始数据
	if err := listener(l.stream()); err != nil {
		return errors.WithMessage(err, "listener failed")
	}
	if !l.watch {
		return nil
	}

	// 监听目录，编辑器保存时通常是 rename 覆盖
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify.NewWatcher failed")
	}
	if err := watcher.Add(filepath.Dir(l.filePath)); err != nil {
		watcher.Close()
		return errors.Wrap(err, "watcher.Add failed")
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if event.Name != l.filePath {
					continue
				}

				l.logger.Info("file changed, reloading", "op", event.Op.String())
				if err := listener(l.stream()); err != nil {
					l.logger.Warn("listener failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("watcher error", "error", err)
			case <-l.done:
				return
			}
		}
	}()

	return nil
}

// Close 可以重复调用
func (l *FileLoader) Close() error {
	l.once.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

type FileStream struct {
	filePath             string
	parser               *LineParser
	skipDirtyRows        bool
	scannerBufferMinSize int
	scannerBufferMaxSize int
	logger               log.Logger
}

func (s *FileStream) Each(handler func(Record) error) error {
	fp, err := os.Open(s.filePath)
	if err != nil {
		return errors.Wrap(err, "os.Open failed")
	}
	defer fp.Close()
	scanner := bufio.NewScanner(fp)
	scanner.Buffer(make([]byte, 0, s.scannerBufferMinSize), s.scannerBufferMaxSize)

	rowCount := 0
	dirtyRowCount := 0
	for scanner.Scan() {
		rowCount++
		line := scanner.Text()
		if line == "" {
			continue
		}

		record, err := s.parser.Parse(line)
		if rowCount == 1 {
			s.logger.Debug("first row parsed", "line", line, "key", record.Key)
		}
		if err == nil {
			err = handler(record)
		}

		if err != nil {
			dirtyRowCount++
			if s.skipDirtyRows {
				s.logger.Error("parse failed, skipping line", "lineNumber", rowCount, "content", line, "error", err)
				continue
			}
			return errors.Wrapf(err, "parse failed for line %d, content: %q", rowCount, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scanner.Err failed")
	}
	if dirtyRowCount > 0 {
		s.logger.Warn("dirty rows skipped", "rows", rowCount, "dirtyRows", dirtyRowCount)
	}
	return nil
}

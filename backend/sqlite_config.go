package backend

import (
	"os"
	"strings"

	"github.com/hatlonely/sqlkv/cfg"
	"github.com/hatlonely/sqlkv/log"
	"gopkg.in/ini.v1"
)

// DefaultSQLiteConfigFile 未指定配置文件时尝试读取的文件
const DefaultSQLiteConfigFile = "sqlite3config.txt"

// LoadSQLiteConfig 读取 key=value 格式的调优文件，
// 文件缺失、无法解析或值非法时使用默认值
func LoadSQLiteConfig(path string, logger log.Logger) *SQLiteOptions {
	options := &SQLiteOptions{}
	defer func() {
		_ = cfg.SetDefaults(options)
	}()

	if path == "" {
		path = DefaultSQLiteConfigFile
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("sqlite config unreadable, using defaults", "path", path, "error", err)
		}
		return options
	}

	file, err := ini.LoadSources(ini.LoadOptions{
		Loose:                    true,
		SkipUnrecognizableLines:  true,
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, path)
	if err != nil {
		logger.Warn("sqlite config invalid, using defaults", "path", path, "error", err)
		return options
	}

	section := file.Section(ini.DefaultSection)
	if v := strings.TrimSpace(section.Key("dbname").String()); v != "" {
		options.DBName = v
	}
	if key, err := section.GetKey("cachesize"); err == nil {
		if n, err := key.Int(); err == nil {
			options.CacheSize = &n
		} else {
			logger.Warn("invalid sqlite cachesize, using default", "value", key.String())
		}
	}
	if key, err := section.GetKey("safewrite"); err == nil {
		options.SafeWrite = parseFlag(key.String())
	}
	if key, err := section.GetKey("journal"); err == nil {
		journal := parseFlag(key.String())
		options.Journal = &journal
	}

	return options
}

// parseFlag "true"/"1"/"yes"/"on" 为 true，大小写不敏感
func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

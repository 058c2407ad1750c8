package cfg

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Format 配置文件格式
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
	JSON Format = "json"
	INI  Format = "ini"
)

// FormatOf 根据文件扩展名推断格式，无法识别时返回 YAML
func FormatOf(path string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "toml":
		return TOML
	case "json", "jsonc":
		return JSON
	case "ini", "conf", "cfg", "txt":
		return INI
	default:
		return YAML
	}
}

// Decode 将配置数据解码为 map
func Decode(data []byte, format Format) (map[string]any, error) {
	result := map[string]any{}

	switch format {
	case YAML:
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode YAML")
		}
	case TOML:
		if err := toml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode TOML")
		}
	case JSON:
		// 支持注释和尾随逗号
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, errors.Wrap(err, "invalid JSONC")
		}
		if err := json.Unmarshal(standardized, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode JSON")
		}
	case INI:
		return decodeINI(data)
	default:
		return nil, errors.Errorf("unsupported format: %s", format)
	}

	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// decodeINI 默认 section 的键放在顶层，section 名按 "." 拆分为嵌套 map
func decodeINI(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		AllowShadows:             true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			for _, part := range strings.Split(name, ".") {
				sub, ok := target[part].(map[string]any)
				if !ok {
					sub = map[string]any{}
					target[part] = sub
				}
				target = sub
			}
		}
		for _, key := range section.Keys() {
			if shadows := key.ValueWithShadows(); len(shadows) > 1 {
				target[key.Name()] = shadows
				continue
			}
			target[key.Name()] = key.Value()
		}
	}
	return result, nil
}

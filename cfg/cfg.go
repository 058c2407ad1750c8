package cfg

import (
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate 使用 validator 校验结构体，错误信息中的字段名使用 cfg tag
func Validate(object any) error {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			if key := fieldKey(field); key != "-" {
				return key
			}
			return ""
		})
	})

	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	return validate.Struct(rv.Interface())
}

// Load 从文件加载配置：解码、绑定、填充默认值、校验
// path 为空时只填充默认值并校验
func Load(path string, object any) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read config %s", path)
		}
		if err := LoadData(data, FormatOf(path), object); err != nil {
			return errors.WithMessagef(err, "load config %s", path)
		}
		return nil
	}
	return finish(object)
}

// LoadData 从内存数据加载配置
func LoadData(data []byte, format Format, object any) error {
	if len(strings.TrimSpace(string(data))) > 0 {
		m, err := Decode(data, format)
		if err != nil {
			return err
		}
		if err := Bind(m, object); err != nil {
			return err
		}
	}
	return finish(object)
}

func finish(object any) error {
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults")
	}
	if err := Validate(object); err != nil {
		return errors.Wrap(err, "validate config")
	}
	return nil
}

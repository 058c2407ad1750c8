package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Bind 将解码后的数据按 cfg tag 绑定到 object，key 匹配不区分大小写
func Bind(data any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return convertValue(data, rv.Elem(), "")
}

// fieldKey 返回字段对应的配置 key，"-" 表示跳过
func fieldKey(field reflect.StructField) string {
	if tag := field.Tag.Get("cfg"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return field.Name
}

func convertValue(src any, dst reflect.Value, path string) error {
	srcValue := reflect.ValueOf(src)
	if !srcValue.IsValid() {
		return nil
	}
	for srcValue.Kind() == reflect.Ptr || srcValue.Kind() == reflect.Interface {
		if srcValue.IsNil() {
			return nil
		}
		srcValue = srcValue.Elem()
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(srcValue.Interface(), dst.Elem(), path)
	}

	if dst.Type() == durationType {
		return convertToDuration(srcValue, dst, path)
	}

	if srcValue.Type().AssignableTo(dst.Type()) {
		dst.Set(srcValue)
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		return convertToStruct(srcValue, dst, path)
	case reflect.Map:
		return convertToMap(srcValue, dst, path)
	case reflect.Slice:
		return convertToSlice(srcValue, dst, path)
	case reflect.Interface:
		if dst.Type().NumMethod() == 0 {
			dst.Set(srcValue)
			return nil
		}
	case reflect.String:
		dst.SetString(fmt.Sprint(srcValue.Interface()))
		return nil
	case reflect.Bool:
		if srcValue.Kind() == reflect.String {
			b, err := strconv.ParseBool(strings.TrimSpace(srcValue.String()))
			if err != nil {
				return errors.Wrapf(err, "invalid bool at %s", path)
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if srcValue.Kind() == reflect.String {
			i, err := strconv.ParseInt(strings.TrimSpace(srcValue.String()), 0, dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "invalid int at %s", path)
			}
			dst.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if srcValue.Kind() == reflect.String {
			u, err := strconv.ParseUint(strings.TrimSpace(srcValue.String()), 0, dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "invalid uint at %s", path)
			}
			dst.SetUint(u)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if srcValue.Kind() == reflect.String {
			f, err := strconv.ParseFloat(strings.TrimSpace(srcValue.String()), dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "invalid float at %s", path)
			}
			dst.SetFloat(f)
			return nil
		}
	}

	if isNumber(srcValue.Kind()) && isNumber(dst.Kind()) {
		dst.Set(srcValue.Convert(dst.Type()))
		return nil
	}

	return errors.Errorf("cannot convert %v to %v at %s", srcValue.Type(), dst.Type(), path)
}

func isNumber(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}

// convertToDuration 字符串按 time.ParseDuration 解析，整数视为纳秒，浮点数视为秒
func convertToDuration(src, dst reflect.Value, path string) error {
	switch src.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(strings.TrimSpace(src.String()))
		if err != nil {
			return errors.Wrapf(err, "invalid duration at %s", path)
		}
		dst.SetInt(int64(d))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(src.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetInt(int64(src.Uint()))
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(src.Float() * float64(time.Second)))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Duration at %s", src.Type(), path)
}

func convertToStruct(src, dst reflect.Value, path string) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("expected a map at %s, got %v", path, src.Type())
	}

	dstType := dst.Type()
	for i := 0; i < dstType.NumField(); i++ {
		field := dstType.Field(i)
		fieldValue := dst.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		// 匿名嵌入结构体共享同一层配置
		if field.Anonymous && field.Tag.Get("cfg") == "" {
			if err := convertValue(src.Interface(), fieldValue, path); err != nil {
				return err
			}
			continue
		}

		key := fieldKey(field)
		if key == "-" {
			continue
		}

		for _, k := range src.MapKeys() {
			if strings.EqualFold(fmt.Sprint(k.Interface()), key) {
				if err := convertValue(src.MapIndex(k).Interface(), fieldValue, join(path, key)); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func convertToMap(src, dst reflect.Value, path string) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("expected a map at %s, got %v", path, src.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}

	keyType := dst.Type().Key()
	for _, k := range src.MapKeys() {
		key := reflect.New(keyType).Elem()
		if err := convertValue(k.Interface(), key, path); err != nil {
			return err
		}
		value := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(src.MapIndex(k).Interface(), value, join(path, fmt.Sprint(k.Interface()))); err != nil {
			return err
		}
		dst.SetMapIndex(key, value)
	}
	return nil
}

// convertToSlice 字符串按逗号拆分
func convertToSlice(src, dst reflect.Value, path string) error {
	if src.Kind() == reflect.String {
		parts := strings.Split(src.String(), ",")
		items := make([]any, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		src = reflect.ValueOf(items)
	}
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return errors.Errorf("expected a list at %s, got %v", path, src.Type())
	}

	slice := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
	for i := 0; i < src.Len(); i++ {
		if err := convertValue(src.Index(i).Interface(), slice.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	dst.Set(slice)
	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

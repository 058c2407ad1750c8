package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

func TestNewSLogWithOptions(t *testing.T) {
	tests := []struct {
		name    string
		options *SLogOptions
		wantErr bool
	}{
		{name: "nil options", options: nil, wantErr: true},
		{name: "default output", options: &SLogOptions{Level: "info"}},
		{name: "json stdout", options: &SLogOptions{Level: "debug", Format: "json", Output: "stdout"}},
		{name: "invalid level", options: &SLogOptions{Level: "invalid"}, wantErr: true},
		{name: "invalid format", options: &SLogOptions{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewSLogWithOptions(tt.options)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "", "INFO"} {
		_, err := parseLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := parseLevel("fatal")
	assert.Error(t, err)
}

func TestSLog(t *testing.T) {
	Convey("测试 SLog 输出", t, func() {
		var buf bytes.Buffer
		l, err := NewSLogWithWriter(&buf, &SLogOptions{
			Level:  "info",
			Format: "json",
			Fields: map[string]string{"service": "sqlkv"},
		})
		So(err, ShouldBeNil)

		Convey("低于级别的日志被过滤", func() {
			l.Debug("hidden")
			So(buf.Len(), ShouldEqual, 0)
		})

		Convey("With 附加字段", func() {
			l.With("namespace", "quotes").Info("set value", "key", "a")

			var record map[string]any
			So(json.Unmarshal(buf.Bytes(), &record), ShouldBeNil)
			So(record["msg"], ShouldEqual, "set value")
			So(record["service"], ShouldEqual, "sqlkv")
			So(record["namespace"], ShouldEqual, "quotes")
			So(record["key"], ShouldEqual, "a")
		})

		Convey("WithGroup 分组", func() {
			l.WithGroup("db").Warn("slow", "ms", 12)

			var record map[string]any
			So(json.Unmarshal(buf.Bytes(), &record), ShouldBeNil)
			group, ok := record["db"].(map[string]any)
			So(ok, ShouldBeTrue)
			So(group["ms"], ShouldEqual, 12)
		})
	})

	Convey("测试文件输出", t, func() {
		path := filepath.Join(t.TempDir(), "logs", "sqlkv.log")
		l, err := NewSLogWithOptions(&SLogOptions{Level: "info", Output: path})
		So(err, ShouldBeNil)
		l.Info("hello")

		data, err := os.ReadFile(path)
		So(err, ShouldBeNil)
		So(string(data), ShouldContainSubstring, "msg=hello")
	})
}

func TestDefault(t *testing.T) {
	Convey("测试默认日志器", t, func() {
		So(Default(), ShouldNotBeNil)

		old := Default()
		defer SetDefault(old)

		d := Discard()
		SetDefault(d)
		So(Default(), ShouldEqual, d)

		SetDefault(nil)
		So(Default(), ShouldEqual, d)
	})
}

package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hatlonely/sqlkv/backend"
	"github.com/hatlonely/sqlkv/kv"
	"github.com/hatlonely/sqlkv/log"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *kv.Store {
	adapter, err := backend.NewSQLiteWithOptions(&backend.SQLiteOptions{DBName: ":memory:", Logger: log.Discard()})
	require.NoError(t, err)
	store, err := kv.New(adapter, &kv.Options{Logger: log.Discard()})
	require.NoError(t, err)
	return store
}

func TestLineParser(t *testing.T) {
	p, err := NewLineParserWithOptions(&LineParserOptions{Separator: "\t"})
	require.NoError(t, err)

	for _, c := range []struct {
		line string
		want Record
	}{
		{"k\tv", Record{Change: ChangeTypeAdd, Key: "k", Value: "v"}},
		{"k\tv\tgeneral", Record{Change: ChangeTypeAdd, Section: "general", Key: "k", Value: "v"}},
		{"k\t\tgeneral\tdelete", Record{Change: ChangeTypeDelete, Section: "general", Key: "k"}},
		{"k\tv\t\tUPDATE", Record{Change: ChangeTypeUpdate, Key: "k", Value: "v"}},
		{"k\tv\t\t3", Record{Change: ChangeTypeDelete, Key: "k", Value: "v"}},
	} {
		got, err := p.Parse(c.line)
		assert.NoError(t, err, c.line)
		assert.Equal(t, c.want, got, c.line)
	}

	for _, line := range []string{"novalue", "\tv", "k\tv\t\tupsert", "k\tv\t\t9"} {
		_, err := p.Parse(line)
		assert.True(t, errors.Is(err, ErrDirtyLine), line)
	}

	_, err = NewLineParserWithOptions(&LineParserOptions{})
	assert.Error(t, err)
}

func TestFileLoader(t *testing.T) {
	Convey("测试 FileLoader", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		file := filepath.Join(dir, "points.txt")
		store := newTestStore(t)
		defer store.Close()

		get := func(section, key string) string {
			v, err := store.GetValue(ctx, "points", section, key)
			if err != nil {
				return "<" + err.Error() + ">"
			}
			return v
		}

		Convey("配置为空", func() {
			_, err := NewFileLoaderWithOptions(nil)
			So(err, ShouldNotBeNil)
			_, err = NewFileLoaderWithOptions(&FileLoaderOptions{})
			So(err, ShouldNotBeNil)
		})

		Convey("加载文件，后出现的行覆盖先出现的行", func() {
			So(store.SetValue(ctx, "points", "", "gone", "1"), ShouldBeNil)
			So(os.WriteFile(file, []byte("alice\t10\nbob\t20\tvip\nalice\t11\n\ngone\t\t\tdelete\n"), 0644), ShouldBeNil)

			l, err := NewFileLoaderWithOptions(&FileLoaderOptions{FilePath: file, Logger: log.Discard()})
			So(err, ShouldBeNil)
			defer l.Close()

			So(l.OnChange(Apply(ctx, store, "points")), ShouldBeNil)
			So(get("", "alice"), ShouldEqual, "11")
			So(get("vip", "bob"), ShouldEqual, "20")
			ok, err := store.HasKey(ctx, "points", "", "gone")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("脏数据", func() {
			So(os.WriteFile(file, []byte("alice\t10\nbroken\nbob\t20\n"), 0644), ShouldBeNil)

			Convey("默认报错且不写入", func() {
				l, err := NewFileLoaderWithOptions(&FileLoaderOptions{FilePath: file, Logger: log.Discard()})
				So(err, ShouldBeNil)
				err = l.OnChange(Apply(ctx, store, "points"))
				So(errors.Is(err, ErrDirtyLine), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "line 2")

				ok, _ := store.NamespaceExists(ctx, "points")
				So(ok, ShouldBeFalse)
			})

			Convey("跳过脏数据", func() {
				l, err := NewFileLoaderWithOptions(&FileLoaderOptions{FilePath: file, SkipDirtyRows: true, Logger: log.Discard()})
				So(err, ShouldBeNil)
				So(l.OnChange(Apply(ctx, store, "points")), ShouldBeNil)
				So(get("", "alice"), ShouldEqual, "10")
				So(get("", "bob"), ShouldEqual, "20")
			})
		})

		Convey("自定义分隔符", func() {
			So(os.WriteFile(file, []byte("alice,10,team-a\n"), 0644), ShouldBeNil)
			l, err := NewFileLoaderWithOptions(&FileLoaderOptions{FilePath: file, Parser: LineParserOptions{Separator: ","}, Logger: log.Discard()})
			So(err, ShouldBeNil)
			So(l.OnChange(Apply(ctx, store, "points")), ShouldBeNil)
			So(get("team-a", "alice"), ShouldEqual, "10")
		})

		Convey("文件不存在", func() {
			l, err := NewFileLoaderWithOptions(&FileLoaderOptions{FilePath: filepath.Join(dir, "missing.txt"), Logger: log.Discard()})
			So(err, ShouldBeNil)
			So(l.OnChange(Apply(ctx, store, "points")), ShouldNotBeNil)
		})

		Convey("监听文件变化", func() {
			So(os.WriteFile(file, []byte("alice\t10\n"), 0644), ShouldBeNil)
			l, err := NewFileLoaderWithOptions(&FileLoaderOptions{FilePath: file, Watch: true, Logger: log.Discard()})
			So(err, ShouldBeNil)
			So(l.OnChange(Apply(ctx, store, "points")), ShouldBeNil)
			So(get("", "alice"), ShouldEqual, "10")

			// 通过 rename 原子替换文件
			tmp := filepath.Join(dir, "points.txt.tmp")
			So(os.WriteFile(tmp, []byte("alice\t12\ncarol\t30\n"), 0644), ShouldBeNil)
			So(os.Rename(tmp, file), ShouldBeNil)

			deadline := time.Now().Add(3 * time.Second)
			for time.Now().Before(deadline) && get("", "carol") != "30" {
				time.Sleep(20 * time.Millisecond)
			}
			So(get("", "carol"), ShouldEqual, "30")
			So(get("", "alice"), ShouldEqual, "12")

			So(l.Close(), ShouldBeNil)
			So(l.Close(), ShouldBeNil)
		})
	})
}

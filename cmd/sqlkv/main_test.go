package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"
)

type cli struct {
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	config := filepath.Join(dir, "sqlkv.yaml")
	content := fmt.Sprintf(`
backend:
  type: sqlite
  sqlite:
    dbname: %s
logger:
  level: debug
  output: %s
`, filepath.Join(dir, "kv.db"), filepath.Join(dir, "sqlkv.log"))
	require.NoError(t, os.WriteFile(config, []byte(content), 0644))
	return &cli{dir: dir, config: config}
}

func (c *cli) run(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", c.config}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestRun(t *testing.T) {
	Convey("测试命令行", t, func() {
		c := newCLI(t)

		Convey("帮助", func() {
			out, _, code := c.run()
			So(code, ShouldEqual, exitOK)
			So(out, ShouldContainSubstring, "Usage: sqlkv")
			So(out, ShouldContainSubstring, "namespaces")
			So(out, ShouldContainSubstring, "--config")

			out, _, code = c.run("keys", "--help")
			So(code, ShouldEqual, exitOK)
			So(out, ShouldContainSubstring, "--order")
		})

		Convey("用法错误返回 2", func() {
			_, errOut, code := c.run("frobnicate")
			So(code, ShouldEqual, exitUsage)
			So(errOut, ShouldContainSubstring, "unknown command")

			_, errOut, code = c.run("get", "ns")
			So(code, ShouldEqual, exitUsage)
			So(errOut, ShouldContainSubstring, "expects 2 arguments")

			_, _, code = c.run("--nope", "namespaces")
			So(code, ShouldEqual, exitUsage)
		})

		Convey("写入、读取、删除", func() {
			_, _, code := c.run("set", "settings", "lang", "en", "--section", "general")
			So(code, ShouldEqual, exitOK)

			out, _, code := c.run("get", "settings", "lang")
			So(code, ShouldEqual, exitOK)
			So(out, ShouldEqual, "en\n")

			out, _, _ = c.run("namespaces")
			So(out, ShouldEqual, "settings\n")

			out, _, _ = c.run("sections", "settings")
			So(out, ShouldEqual, "general\n")

			_, _, code = c.run("del", "settings", "lang")
			So(code, ShouldEqual, exitOK)

			_, errOut, code := c.run("get", "settings", "lang")
			So(code, ShouldEqual, exitError)
			So(errOut, ShouldContainSubstring, "key not found")

			// 日志写到文件，不混入标准输出
			log, err := os.ReadFile(filepath.Join(c.dir, "sqlkv.log"))
			So(err, ShouldBeNil)
			So(string(log), ShouldContainSubstring, "operation completed")
		})

		Convey("排序分页与搜索", func() {
			for _, k := range []string{"b", "a", "c", "ab"} {
				_, _, code := c.run("set", "letters", k, "v-"+k)
				So(code, ShouldEqual, exitOK)
			}

			out, _, code := c.run("keys", "letters", "--order", "desc", "--count", "2")
			So(code, ShouldEqual, exitOK)
			So(out, ShouldEqual, "c\nb\n")

			out, _, _ = c.run("keys", "letters", "--offset", "1", "--count", "2")
			So(out, ShouldEqual, "ab\nb\n")

			out, _, _ = c.run("search", "letters", "a", "--order", "ASC")
			So(out, ShouldEqual, "a\nab\n")

			out, _, _ = c.run("search", "letters", "v-c", "--by", "value")
			So(out, ShouldEqual, "c\n")

			_, _, code = c.run("keys", "letters", "--order", "sideways")
			So(code, ShouldEqual, exitError)

			_, _, code = c.run("search", "letters", "a", "--by", "section")
			So(code, ShouldEqual, exitError)
		})

		Convey("重命名、删除与索引", func() {
			c.run("set", "old", "k", "v")
			_, _, code := c.run("rename", "old", "new")
			So(code, ShouldEqual, exitOK)

			out, _, _ := c.run("namespaces")
			So(out, ShouldEqual, "new\n")

			_, _, code = c.run("index")
			So(code, ShouldEqual, exitOK)

			c.run("set", "new", "k2", "v2", "-s", "tmp")
			_, _, code = c.run("drop", "new", "--section", "tmp")
			So(code, ShouldEqual, exitOK)
			out, _, _ = c.run("keys", "new")
			So(out, ShouldEqual, "k\n")

			_, _, code = c.run("drop", "new")
			So(code, ShouldEqual, exitOK)
			out, _, _ = c.run("namespaces")
			So(out, ShouldBeEmpty)
		})

		Convey("导出与导入", func() {
			c.run("set", "src", "plain", "1")
			c.run("set", "src", "lang", "en", "-s", "general")
			c.run("set", "src", "theme", "dark", "-s", "general")

			file := filepath.Join(c.dir, "dump", "src.json")
			So(os.MkdirAll(filepath.Dir(file), 0755), ShouldBeNil)
			_, errOut, code := c.run("export", "src", file)
			So(code, ShouldEqual, exitOK)
			So(errOut, ShouldBeEmpty)

			data, err := os.ReadFile(file)
			So(err, ShouldBeNil)
			var dump map[string]map[string]string
			So(json.Unmarshal(data, &dump), ShouldBeNil)
			So(cmp.Diff(map[string]map[string]string{
				"":        {"plain": "1"},
				"general": {"lang": "en", "theme": "dark"},
			}, dump), ShouldBeEmpty)

			_, _, code = c.run("import", "dst", file)
			So(code, ShouldEqual, exitOK)
			out, _, _ := c.run("get", "dst", "theme", "-s", "general")
			So(out, ShouldEqual, "dark\n")
			out, _, _ = c.run("keys", "dst", "--order", "ASC")
			So(out, ShouldEqual, "lang\nplain\ntheme\n")
		})

		Convey("加载文本文件", func() {
			file := filepath.Join(c.dir, "points.txt")
			So(os.WriteFile(file, []byte("alice,10\nbob,20,vip\nbroken\n"), 0644), ShouldBeNil)

			_, errOut, code := c.run("load", "points", file, "--separator", ",")
			So(code, ShouldEqual, exitError)
			So(errOut, ShouldContainSubstring, "line 3")

			_, _, code = c.run("load", "points", file, "--separator", ",", "--skip-dirty")
			So(code, ShouldEqual, exitOK)
			out, _, _ := c.run("get", "points", "bob", "-s", "vip")
			So(out, ShouldEqual, "20\n")

			So(os.WriteFile(file, []byte("alice\t11\n"), 0644), ShouldBeNil)
			_, _, code = c.run("load", "points", file)
			So(code, ShouldEqual, exitOK)
			out, _, _ = c.run("get", "points", "alice")
			So(out, ShouldEqual, "11\n")
		})

		Convey("命令行参数覆盖配置文件", func() {
			sqliteConfig := filepath.Join(c.dir, "sqlite3config.txt")
			dbname := filepath.Join(c.dir, "other.db")
			So(os.WriteFile(sqliteConfig, []byte("dbname="+dbname+"\n"), 0644), ShouldBeNil)

			_, _, code := c.run("--backend", "sqlite", "--param", sqliteConfig, "set", "ns", "k", "v")
			So(code, ShouldEqual, exitOK)
			_, err := os.Stat(dbname)
			So(err, ShouldBeNil)

			// 配置文件里的库不受影响
			out, _, _ := c.run("namespaces")
			So(strings.TrimSpace(out), ShouldBeEmpty)
		})

		Convey("未知后端", func() {
			_, errOut, code := c.run("--backend", "oracle", "namespaces")
			So(code, ShouldEqual, exitError)
			So(errOut, ShouldContainSubstring, "unknown backend")
		})
	})
}

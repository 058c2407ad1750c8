package kv

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

func TestParseSortOrder(t *testing.T) {
	for _, c := range []struct {
		in   string
		want SortOrder
		ok   bool
	}{
		{"ASC", Ascending, true},
		{"asc", Ascending, true},
		{" Desc ", Descending, true},
		{"", "", false},
		{"DESC; DROP TABLE kv_points", "", false},
	} {
		got, err := ParseSortOrder(c.in)
		if c.ok {
			assert.NoError(t, err, c.in)
			assert.Equal(t, c.want, got)
		} else {
			assert.True(t, errors.Is(err, ErrInvalidArgument), c.in)
		}
	}
}

func TestQuery(t *testing.T) {
	Convey("测试查询", t, func() {
		ctx := context.Background()
		s := newTestStore(t, nil)
		defer s.Close()

		keys := make([]string, 0, 25)
		values := make([]string, 0, 25)
		for i := 0; i < 25; i++ {
			keys = append(keys, fmt.Sprintf("user%02d", i))
			values = append(values, fmt.Sprintf("level-%d", i%3))
		}
		So(s.SetBatchValues(ctx, "users", "players", keys, values), ShouldBeNil)
		So(s.SetValue(ctx, "users", "admins", "root", "level-9"), ShouldBeNil)
		So(s.SetValue(ctx, "users", "admins", "ops", "level-1"), ShouldBeNil)

		Convey("列出 section", func() {
			sections, err := s.ListSections(ctx, "users")
			So(err, ShouldBeNil)
			So(sorted(sections), ShouldResemble, []string{"admins", "players"})
		})

		Convey("列出 key", func() {
			all, err := s.ListKeys(ctx, "users", "")
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 27)

			admins, err := s.ListKeys(ctx, "users", "admins")
			So(err, ShouldBeNil)
			So(sorted(admins), ShouldResemble, []string{"ops", "root"})
		})

		Convey("升序分页", func() {
			page, err := s.ListKeysOrdered(ctx, "users", "players", Ascending, 0, 10)
			So(err, ShouldBeNil)
			So(cmp.Diff(keys[:10], page), ShouldBeEmpty)

			page, err = s.ListKeysOrdered(ctx, "users", "players", Ascending, 20, 10)
			So(err, ShouldBeNil)
			So(cmp.Diff(keys[20:], page), ShouldBeEmpty)
		})

		Convey("降序分页", func() {
			page, err := s.ListKeysOrdered(ctx, "users", "players", Descending, 0, 3)
			So(err, ShouldBeNil)
			So(page, ShouldResemble, []string{"user24", "user23", "user22"})
		})

		Convey("不限 section 排序", func() {
			page, err := s.ListKeysOrdered(ctx, "users", "", Ascending, 0, 2)
			So(err, ShouldBeNil)
			So(page, ShouldResemble, []string{"ops", "root"})
		})

		Convey("count 为 0 返回空列表", func() {
			page, err := s.ListKeysOrdered(ctx, "users", "", Ascending, 0, 0)
			So(err, ShouldBeNil)
			So(page, ShouldBeEmpty)
		})

		Convey("非法分页参数", func() {
			_, err := s.ListKeysOrdered(ctx, "users", "", Ascending, -1, 10)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
			_, err = s.ListKeysOrdered(ctx, "users", "", Ascending, 0, -1)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
			_, err = s.ListKeysOrdered(ctx, "users", "", SortOrder("RANDOM()"), 0, 10)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("按 value 搜索", func() {
			found, err := s.SearchKeysByValue(ctx, "users", "admins", "1")
			So(err, ShouldBeNil)
			So(found, ShouldResemble, []string{"ops"})

			found, err = s.SearchKeysByValue(ctx, "users", "", "level-9")
			So(err, ShouldBeNil)
			So(found, ShouldResemble, []string{"root"})
		})

		Convey("按 key 搜索", func() {
			found, err := s.SearchKeysByKey(ctx, "users", "", "user1")
			So(err, ShouldBeNil)
			So(found, ShouldHaveLength, 10)

			found, err = s.SearchKeysByKey(ctx, "users", "admins", "user")
			So(err, ShouldBeNil)
			So(found, ShouldBeEmpty)
		})

		Convey("按 key 搜索并分页", func() {
			found, err := s.SearchKeysOrdered(ctx, "users", "players", "user1", Descending, 2, 3)
			So(err, ShouldBeNil)
			So(found, ShouldResemble, []string{"user17", "user16", "user15"})
		})

		Convey("命名空间不存在返回空列表", func() {
			sections, err := s.ListSections(ctx, "missing")
			So(err, ShouldBeNil)
			So(sections, ShouldBeEmpty)

			found, err := s.SearchKeysOrdered(ctx, "missing", "", "x", Ascending, 0, 10)
			So(err, ShouldBeNil)
			So(found, ShouldBeEmpty)
		})
	})
}

func TestKeyQueryBuild(t *testing.T) {
	quote := func(s string) string { return `"` + s + `"` }

	q := &keyQuery{column: columnSection, groupBy: columnSection}
	assert.Equal(t, `SELECT "section" FROM "kv_ns" GROUP BY "section"`, q.build("kv_ns", quote))

	q = (&keyQuery{column: columnVariable}).filter(`"section" = ?`, "s").filter(`"variable" LIKE ?`, "%a%")
	q.orderBy = `"variable" DESC`
	q.paged = true
	assert.Equal(t, `SELECT "variable" FROM "kv_ns" WHERE "section" = ? AND "variable" LIKE ? ORDER BY "variable" DESC LIMIT ? OFFSET ?`, q.build("kv_ns", quote))
	assert.Equal(t, []any{"s", "%a%"}, q.args)
}

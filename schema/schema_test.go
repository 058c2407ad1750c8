package schema

import (
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewTable(t *testing.T) {
	Convey("测试 NewTable", t, func() {
		Convey("空表名返回 ErrInvalidIdentifier", func() {
			td, err := NewTable("  ")
			So(td, ShouldBeNil)
			So(errors.Is(err, ErrInvalidIdentifier), ShouldBeTrue)
		})

		Convey("正常表名", func() {
			td, err := NewTable("users")
			So(err, ShouldBeNil)
			So(td.Name(), ShouldEqual, "users")
			So(td.Temporary, ShouldBeFalse)
		})
	})
}

func TestAddField(t *testing.T) {
	Convey("测试 AddField", t, func() {
		td, _ := NewTable("users")

		Convey("默认参数", func() {
			f, err := td.AddField("id", Integer)
			So(err, ShouldBeNil)
			So(f.Length, ShouldEqual, Unset)
			So(f.Scale, ShouldEqual, Unset)
			So(f.Unsigned, ShouldBeTrue)
			So(f.NotNull, ShouldBeTrue)
			So(f.AutoIncrement, ShouldBeFalse)
			So(f.DefaultValue, ShouldBeNil)
			So(td.Fields, ShouldHaveLength, 1)
		})

		Convey("链式设置", func() {
			f, err := td.AddField("price", Decimal)
			So(err, ShouldBeNil)
			f.WithLength(10, 2).Signed().Nullable().WithDefault("0.00")
			So(f.Length, ShouldEqual, 10)
			So(f.Scale, ShouldEqual, 2)
			So(f.Unsigned, ShouldBeFalse)
			So(f.NotNull, ShouldBeFalse)
			So(*f.DefaultValue, ShouldEqual, "0.00")
		})

		Convey("空字段名", func() {
			_, err := td.AddField("", Text)
			So(errors.Is(err, ErrInvalidIdentifier), ShouldBeTrue)
			So(td.Fields, ShouldBeEmpty)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("测试 Validate", t, func() {
		td, _ := NewTable("t")

		Convey("没有字段", func() {
			So(errors.Is(td.Validate(), ErrInvalidDefinition), ShouldBeTrue)
		})

		Convey("VARCHAR 缺少长度", func() {
			td.AddField("name", VarChar)
			So(errors.Is(td.Validate(), ErrInvalidDefinition), ShouldBeTrue)
		})

		Convey("未知数据类型", func() {
			td.AddField("name", DataType("BLOB"))
			So(errors.Is(td.Validate(), ErrInvalidDefinition), ShouldBeTrue)
		})

		Convey("多个自增字段", func() {
			a, _ := td.AddField("a", Integer)
			b, _ := td.AddField("b", Integer)
			a.Increment()
			b.Increment()
			So(errors.Is(td.Validate(), ErrInvalidDefinition), ShouldBeTrue)
		})

		Convey("自增字段与 PRIMARY 索引冲突", func() {
			id, _ := td.AddField("id", Integer)
			id.Increment()
			td.AddIndex("pk", Primary, "id")
			So(errors.Is(td.Validate(), ErrInvalidDefinition), ShouldBeTrue)
		})

		Convey("索引没有列", func() {
			td.AddField("id", Integer)
			td.AddIndex("idx", Index)
			So(errors.Is(td.Validate(), ErrInvalidDefinition), ShouldBeTrue)
		})

		Convey("空索引名", func() {
			_, err := td.AddIndex("", Index, "id")
			So(errors.Is(err, ErrInvalidIdentifier), ShouldBeTrue)
		})

		Convey("外键列数不匹配", func() {
			td.AddField("uid", Integer)
			td.AddForeignKey([]string{"uid"}, "users", []string{"id", "name"})
			So(errors.Is(td.Validate(), ErrInvalidDefinition), ShouldBeTrue)
		})

		Convey("外键父表为空", func() {
			td.AddField("uid", Integer)
			td.AddForeignKey([]string{"uid"}, "", []string{"id"})
			So(errors.Is(td.Validate(), ErrInvalidIdentifier), ShouldBeTrue)
		})

		Convey("合法定义", func() {
			id, _ := td.AddField("id", Integer)
			id.Increment()
			name, _ := td.AddField("name", VarChar)
			name.WithLength(255, Unset)
			td.AddIndex("name_unique", Unique, "name")
			td.AddForeignKey([]string{"id"}, "users", []string{"id"}).Actions(Cascade, SetNull)
			So(td.Validate(), ShouldBeNil)
		})
	})
}

func TestEnums(t *testing.T) {
	Convey("测试枚举", t, func() {
		So(Integer.Numeric(), ShouldBeTrue)
		So(Decimal.Numeric(), ShouldBeTrue)
		So(Text.Numeric(), ShouldBeFalse)
		So(DateTime.Numeric(), ShouldBeFalse)
		So(FullText.Valid(), ShouldBeTrue)
		So(IndexType("SPATIAL").Valid(), ShouldBeFalse)
		So(string(SetNull), ShouldEqual, "SET NULL")
		So(string(NoAction), ShouldEqual, "NO ACTION")
	})
}

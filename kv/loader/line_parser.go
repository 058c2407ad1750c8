package loader

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrDirtyLine = errors.New("dirty line")

type LineParserOptions struct {
	Separator string `cfg:"separator" def:"\t"`
}

// LineParser 解析 key<sep>value[<sep>section[<sep>change]]
// change 可以是 add/update/delete 或对应的数字，缺省为 add
type LineParser struct {
	separator string
}

func NewLineParserWithOptions(options *LineParserOptions) (*LineParser, error) {
	if options == nil || options.Separator == "" {
		return nil, errors.New("separator cannot be empty")
	}
	return &LineParser{separator: options.Separator}, nil
}

func (p *LineParser) Parse(line string) (Record, error) {
	parts := strings.Split(line, p.separator)
	if len(parts) < 2 {
		return Record{}, errors.Wrapf(ErrDirtyLine, "expect at least 2 fields, got %d", len(parts))
	}
	if parts[0] == "" {
		return Record{}, errors.Wrap(ErrDirtyLine, "empty key")
	}

	record := Record{Change: ChangeTypeAdd, Key: parts[0], Value: parts[1]}
	if len(parts) >= 3 {
		record.Section = parts[2]
	}
	if len(parts) >= 4 && parts[3] != "" {
		change, err := parseChangeType(parts[3])
		if err != nil {
			return Record{}, err
		}
		record.Change = change
	}
	return record, nil
}

func parseChangeType(s string) (ChangeType, error) {
	if val, err := strconv.Atoi(s); err == nil {
		switch change := ChangeType(val); change {
		case ChangeTypeAdd, ChangeTypeUpdate, ChangeTypeDelete:
			return change, nil
		}
		return ChangeTypeUnknown, errors.Wrapf(ErrDirtyLine, "unknown change type %d", val)
	}

	switch strings.ToLower(s) {
	case "add":
		return ChangeTypeAdd, nil
	case "update":
		return ChangeTypeUpdate, nil
	case "delete":
		return ChangeTypeDelete, nil
	}
	return ChangeTypeUnknown, errors.Wrapf(ErrDirtyLine, "unknown change type [%s]", s)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hatlonely/sqlkv/kv"
	"github.com/hatlonely/sqlkv/kv/loader"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

var commands = map[string]*command{
	"namespaces": {
		usage: "namespaces",
		short: "List all namespaces",
		bind: func(fs *flag.FlagSet) action {
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				namespaces, err := store.ListNamespaces(ctx)
				if err != nil {
					return err
				}
				sort.Strings(namespaces)
				printLines(out, namespaces)
				return nil
			}
		},
	},
	"sections": {
		usage: "sections <ns>",
		short: "List the sections of a namespace",
		nargs: 1,
		bind: func(fs *flag.FlagSet) action {
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				sections, err := store.ListSections(ctx, args[0])
				if err != nil {
					return err
				}
				printLines(out, sections)
				return nil
			}
		},
	},
	"keys": {
		usage: "keys <ns> [flags]",
		short: "List keys, optionally ordered and paged",
		nargs: 1,
		bind: func(fs *flag.FlagSet) action {
			section := fs.StringP("section", "s", "", "only keys in this section")
			p := bindPage(fs)
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				var keys []string
				var err error
				if p.enabled(fs) {
					order, perr := kv.ParseSortOrder(p.order)
					if perr != nil {
						return perr
					}
					keys, err = store.ListKeysOrdered(ctx, args[0], *section, order, p.offset, p.count)
				} else {
					keys, err = store.ListKeys(ctx, args[0], *section)
				}
				if err != nil {
					return err
				}
				printLines(out, keys)
				return nil
			}
		},
	},
	"get": {
		usage: "get <ns> <key> [flags]",
		short: "Print the value of a key",
		nargs: 2,
		bind: func(fs *flag.FlagSet) action {
			section := fs.StringP("section", "s", "", "section of the key")
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				value, err := store.GetValue(ctx, args[0], *section, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, value)
				return nil
			}
		},
	},
	"set": {
		usage: "set <ns> <key> <value> [flags]",
		short: "Set the value of a key, creating the namespace if needed",
		nargs: 3,
		bind: func(fs *flag.FlagSet) action {
			section := fs.StringP("section", "s", "", "section of the key")
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				return store.SetValue(ctx, args[0], *section, args[1], args[2])
			}
		},
	},
	"del": {
		usage: "del <ns> <key> [flags]",
		short: "Remove a key",
		nargs: 2,
		bind: func(fs *flag.FlagSet) action {
			section := fs.StringP("section", "s", "", "section of the key")
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				return store.RemoveKey(ctx, args[0], *section, args[1])
			}
		},
	},
	"drop": {
		usage: "drop <ns> [flags]",
		short: "Remove a namespace, or only one of its sections",
		nargs: 1,
		bind: func(fs *flag.FlagSet) action {
			section := fs.StringP("section", "s", "", "only remove this section")
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				if fs.Changed("section") {
					return store.RemoveSection(ctx, args[0], *section)
				}
				return store.RemoveNamespace(ctx, args[0])
			}
		},
	},
	"rename": {
		usage: "rename <src> <dst>",
		short: "Rename a namespace, replacing dst if it exists",
		nargs: 2,
		bind: func(fs *flag.FlagSet) action {
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				return store.RenameNamespace(ctx, args[0], args[1])
			}
		},
	},
	"search": {
		usage: "search <ns> <term> [flags]",
		short: "Search keys whose key or value contains term",
		nargs: 2,
		bind: func(fs *flag.FlagSet) action {
			section := fs.StringP("section", "s", "", "only keys in this section")
			by := fs.String("by", "key", "match against key or value")
			p := bindPage(fs)
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				var keys []string
				var err error
				switch *by {
				case "key":
					if p.enabled(fs) {
						order, perr := kv.ParseSortOrder(p.order)
						if perr != nil {
							return perr
						}
						keys, err = store.SearchKeysOrdered(ctx, args[0], *section, args[1], order, p.offset, p.count)
					} else {
						keys, err = store.SearchKeysByKey(ctx, args[0], *section, args[1])
					}
				case "value":
					keys, err = store.SearchKeysByValue(ctx, args[0], *section, args[1])
				default:
					return errors.Errorf("unsupported --by [%s], expect key or value", *by)
				}
				if err != nil {
					return err
				}
				printLines(out, keys)
				return nil
			}
		},
	},
	"index": {
		usage: "index",
		short: "Build the key index of every namespace",
		bind: func(fs *flag.FlagSet) action {
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				return store.BuildIndexes(ctx)
			}
		},
	},
	"export": {
		usage: "export <ns> <file>",
		short: "Write a namespace to a JSON file as {section: {key: value}}",
		nargs: 2,
		bind: func(fs *flag.FlagSet) action {
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				dump, err := exportNamespace(ctx, store, args[0])
				if err != nil {
					return err
				}
				buf, err := json.MarshalIndent(dump, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal namespace")
				}
				if err := atomic.WriteFile(args[1], bytes.NewReader(append(buf, '\n'))); err != nil {
					return errors.Wrapf(err, "write %s", args[1])
				}
				return nil
			}
		},
	},
	"import": {
		usage: "import <ns> <file>",
		short: "Load a JSON file written by export into a namespace in one commit",
		nargs: 2,
		bind: func(fs *flag.FlagSet) action {
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return errors.Wrapf(err, "read %s", args[1])
				}
				var dump map[string]map[string]string
				if err := json.Unmarshal(data, &dump); err != nil {
					return errors.Wrapf(err, "parse %s", args[1])
				}
				return importNamespace(ctx, store, args[0], dump)
			}
		},
	},
	"load": {
		usage: "load <ns> <file> [flags]",
		short: "Load a text file of key<sep>value[<sep>section[<sep>change]] lines",
		nargs: 2,
		bind: func(fs *flag.FlagSet) action {
			separator := fs.String("separator", `\t`, "field separator")
			skipDirty := fs.Bool("skip-dirty", false, "log and skip malformed lines")
			watch := fs.Bool("watch", false, "keep running and reload when the file changes")
			return func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error {
				l, err := loader.NewFileLoaderWithOptions(&loader.FileLoaderOptions{
					FilePath:      args[1],
					Parser:        loader.LineParserOptions{Separator: unescape(*separator)},
					SkipDirtyRows: *skipDirty,
					Watch:         *watch,
					Logger:        store.Logger(),
				})
				if err != nil {
					return err
				}
				defer l.Close()

				if err := l.OnChange(loader.Apply(ctx, store, args[0])); err != nil {
					return err
				}
				if *watch {
					<-ctx.Done()
				}
				return nil
			}
		},
	},
}

type page struct {
	order  string
	offset int
	count  int
}

func bindPage(fs *flag.FlagSet) *page {
	p := &page{}
	fs.StringVar(&p.order, "order", "ASC", "sort order, ASC or DESC")
	fs.IntVar(&p.offset, "offset", 0, "number of keys to skip")
	fs.IntVar(&p.count, "count", 100, "maximum number of keys")
	return p
}

// unescape 命令行里的 \t 转为制表符
func unescape(s string) string {
	return strings.ReplaceAll(s, `\t`, "\t")
}

func (p *page) enabled(fs *flag.FlagSet) bool {
	return fs.Changed("order") || fs.Changed("offset") || fs.Changed("count")
}

// exportNamespace 没有 section 的 key 归入 ""
func exportNamespace(ctx context.Context, store *kv.Store, namespace string) (map[string]map[string]string, error) {
	keys, err := store.ListKeys(ctx, namespace, "")
	if err != nil {
		return nil, err
	}
	sections, err := store.ListSections(ctx, namespace)
	if err != nil {
		return nil, err
	}

	sectionOf := map[string]string{}
	for _, section := range sections {
		if section == "" {
			continue
		}
		sectionKeys, err := store.ListKeys(ctx, namespace, section)
		if err != nil {
			return nil, err
		}
		for _, key := range sectionKeys {
			sectionOf[key] = section
		}
	}

	dump := map[string]map[string]string{}
	for _, key := range keys {
		section := sectionOf[key]
		value, err := store.GetValue(ctx, namespace, section, key)
		if err != nil {
			return nil, err
		}
		if dump[section] == nil {
			dump[section] = map[string]string{}
		}
		dump[section][key] = value
	}
	return dump, nil
}

func importNamespace(ctx context.Context, store *kv.Store, namespace string, dump map[string]map[string]string) error {
	return store.Batch(ctx, func(ctx context.Context) error {
		for section, entries := range dump {
			keys := make([]string, 0, len(entries))
			for key := range entries {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			values := make([]string, 0, len(keys))
			for _, key := range keys {
				values = append(values, entries[key])
			}
			if err := store.SetBatchValues(ctx, namespace, section, keys, values); err != nil {
				return err
			}
		}
		return nil
	})
}

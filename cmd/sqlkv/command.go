package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hatlonely/sqlkv/kv"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

type action func(ctx context.Context, store *kv.Store, out io.Writer, args []string) error

// command 子命令定义，bind 注册子命令参数并返回执行函数
type command struct {
	usage string
	short string
	nargs int
	bind  func(fs *flag.FlagSet) action
}

type invocation struct {
	act  action
	args []string
}

func (c *command) name() string {
	name, _, _ := strings.Cut(c.usage, " ")
	return name
}

func (c *command) flagSet() (*flag.FlagSet, action) {
	fs := flag.NewFlagSet(c.name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs, c.bind(fs)
}

func (c *command) parse(args []string) (*invocation, error) {
	fs, act := c.flagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != c.nargs {
		return nil, errors.Errorf("%s expects %d arguments, got %d", c.name(), c.nargs, fs.NArg())
	}
	return &invocation{act: act, args: fs.Args()}, nil
}

func (inv *invocation) exec(ctx context.Context, store *kv.Store, out io.Writer) error {
	return inv.act(ctx, store, out, inv.args)
}

func (c *command) helpLine() string {
	return fmt.Sprintf("  %-36s %s", c.usage, c.short)
}

func (c *command) printHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: sqlkv", c.usage)
	fmt.Fprintln(w)
	fmt.Fprintln(w, c.short)
	if fs, _ := c.flagSet(); fs.HasFlags() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")
		fmt.Fprint(w, fs.FlagUsages())
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}

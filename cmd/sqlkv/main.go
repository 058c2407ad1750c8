// sqlkv 命名空间键值存储的命令行工具
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hatlonely/sqlkv/backend"
	"github.com/hatlonely/sqlkv/cfg"
	"github.com/hatlonely/sqlkv/kv"
	"github.com/hatlonely/sqlkv/log"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type Options struct {
	Backend backend.Options `cfg:"backend"`
	Store   kv.Options      `cfg:"store"`
	Logger  log.SLogOptions `cfg:"logger"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globalFlags struct {
	config  string
	backend string
	params  []string
	help    bool
}

func parseGlobalFlags(args []string) (*flag.FlagSet, *globalFlags, error) {
	flags := &globalFlags{}
	fs := flag.NewFlagSet("sqlkv", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.StringVarP(&flags.config, "config", "c", "", "config file (yaml, toml, json, ini)")
	fs.StringVarP(&flags.backend, "backend", "b", "", "backend type, overrides the config file")
	fs.StringArrayVarP(&flags.params, "param", "p", nil, "backend parameter, repeatable")
	fs.BoolVarP(&flags.help, "help", "h", false, "show help")
	return fs, flags, fs.Parse(args)
}

// loadOptions 命令行参数覆盖配置文件
func loadOptions(flags *globalFlags) (*Options, error) {
	options := &Options{}
	if err := cfg.Load(flags.config, options); err != nil {
		return nil, err
	}
	if flags.backend != "" {
		options.Backend.Type = flags.backend
	}
	if len(flags.params) > 0 {
		options.Backend.Params = flags.params
		options.Backend.MySQL = nil
		options.Backend.SQLite = nil
	}
	return options, nil
}

func newStore(options *Options) (*kv.Store, error) {
	logger, err := log.NewSLogWithOptions(&options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger")
	}

	options.Backend.Logger = logger
	adapter, err := backend.NewWithOptions(&options.Backend)
	if err != nil {
		return nil, errors.WithMessage(err, "create backend")
	}

	options.Store.Logger = logger
	store, err := kv.New(adapter, &options.Store)
	if err != nil {
		_ = adapter.Close()
		return nil, errors.WithMessage(err, "create store")
	}
	return store, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, flags, err := parseGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		printUsage(stderr, fs)
		return exitUsage
	}
	if flags.help || fs.NArg() == 0 {
		printUsage(stdout, fs)
		return exitOK
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintln(stderr, "error: unknown command:", name)
		printUsage(stderr, fs)
		return exitUsage
	}

	inv, err := cmd.parse(fs.Args()[1:])
	if errors.Is(err, flag.ErrHelp) {
		cmd.printHelp(stdout)
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		cmd.printHelp(stderr)
		return exitUsage
	}

	options, err := loadOptions(flags)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
	store, err := newStore(options)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}

	err = inv.exec(ctx, store, stdout)
	if closeErr := store.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: sqlkv [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandNames() {
		fmt.Fprintln(w, commands[name].helpLine())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

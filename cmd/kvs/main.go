package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/forever-free1/kvs/config"
	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/bitcask"
)

var version = "0.1.0"

// errReported 表示结果已经输出，只需要以非零状态退出
var errReported = errors.New("reported")

type cli struct {
	stdout io.Writer
	stderr io.Writer

	dir        string
	configFile string
	logLevel   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errReported):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kvs",
		Short:         "A log-structured key-value store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.dir, "dir", ".", "data directory holding kvs.log")
	flags.StringVar(&c.configFile, "config", "", "path to a YAML config file")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set the value of a string key to a string",
			Args:  cobra.ExactArgs(2),
			RunE:  c.set,
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Get the string value of a given string key",
			Args:  cobra.ExactArgs(1),
			RunE:  c.get,
		},
		&cobra.Command{
			Use:   "rm <key>",
			Short: "Remove a given key",
			Args:  cobra.ExactArgs(1),
			RunE:  c.rm,
		},
		&cobra.Command{
			Use:   "compact",
			Short: "Rewrite the log keeping only live keys",
			Args:  cobra.NoArgs,
			RunE:  c.compact,
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print store statistics",
			Args:  cobra.NoArgs,
			RunE:  c.stats,
		},
	)
	return root
}

// open 按配置文件和命令行参数打开数据库，命令行参数优先
func (c *cli) open(cmd *cobra.Command) (*bitcask.DB, error) {
	cfg := config.DefaultConfig()
	if c.configFile != "" {
		loaded, err := config.Load(c.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("dir") || c.configFile == "" {
		cfg.DataDir = c.dir
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return bitcask.Open(cfg.DataDir, cfg.Options(cfg.Logger(c.stderr))...)
}

func (c *cli) set(cmd *cobra.Command, args []string) error {
	db, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Set(args[0], args[1]); err != nil {
		return err
	}
	return db.Close()
}

func (c *cli) get(cmd *cobra.Command, args []string) error {
	db, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	value, ok, err := db.Get(args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.stdout, "Key not found")
		return nil
	}
	fmt.Fprintln(c.stdout, value)
	return nil
}

func (c *cli) rm(cmd *cobra.Command, args []string) error {
	db, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Remove(args[0]); err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			fmt.Fprintln(c.stdout, "Key not found")
			return errReported
		}
		return err
	}
	return db.Close()
}

func (c *cli) compact(cmd *cobra.Command, _ []string) error {
	db, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	before := db.Stat().LogSize
	if err := db.Compact(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "compacted %d -> %d bytes\n", before, db.Stat().LogSize)
	return db.Close()
}

func (c *cli) stats(cmd *cobra.Command, _ []string) error {
	db, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	st := db.Stat()
	fmt.Fprintf(c.stdout, "keys: %d\nlog_size: %d\nstale_bytes: %d\n", st.Keys, st.LogSize, st.StaleBytes)
	return nil
}

package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
	"gopkg.in/yaml.v3"

	"github.com/forever-free1/kvs/storage/bitcask"
	"github.com/forever-free1/kvs/storage/index"
)

// Config 命令行工具的配置
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig 存储引擎配置
type StorageConfig struct {
	CompactionThreshold int64   `yaml:"compaction_threshold"`
	SyncWrites          bool    `yaml:"sync_writes"`
	Compression         bool    `yaml:"compression"`
	IndexType           string  `yaml:"index_type"`
	BloomFilterFP       float64 `yaml:"bloom_filter_fp"`
	BloomCapacity       uint    `yaml:"bloom_capacity"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `yaml:"level"`
}

var levels = map[string]log.Level{
	"trace": log.TraceLevel,
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".",
		Storage: StorageConfig{
			CompactionThreshold: bitcask.DefaultCompactionThreshold,
			IndexType:           "art",
			BloomFilterFP:       0.01,
			BloomCapacity:       100000,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load 从 YAML 文件加载配置，文件中未出现的字段保留默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Storage.CompactionThreshold <= 0 {
		return fmt.Errorf("storage.compaction_threshold must be positive")
	}
	if _, ok := index.ParseType(c.Storage.IndexType); !ok {
		return fmt.Errorf("storage.index_type %q is not one of art, map", c.Storage.IndexType)
	}
	if c.Storage.BloomFilterFP <= 0 || c.Storage.BloomFilterFP >= 1 {
		return fmt.Errorf("storage.bloom_filter_fp must be in (0, 1)")
	}
	if c.Storage.BloomCapacity == 0 {
		return fmt.Errorf("storage.bloom_capacity must be positive")
	}
	if _, ok := levels[strings.ToLower(c.Logging.Level)]; !ok {
		return fmt.Errorf("logging.level %q is not valid", c.Logging.Level)
	}
	return nil
}

// Logger 按配置的级别创建输出到 w 的日志记录器
func (c *Config) Logger(w io.Writer) *log.Logger {
	level, ok := levels[strings.ToLower(c.Logging.Level)]
	if !ok {
		level = log.WarnLevel
	}
	return &log.Logger{
		Level: level,
		Writer: &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: false,
		},
	}
}

// Options 将配置转换为存储引擎选项
func (c *Config) Options(logger *log.Logger) []bitcask.Option {
	indexType, _ := index.ParseType(c.Storage.IndexType)
	return []bitcask.Option{
		bitcask.WithCompactionThreshold(c.Storage.CompactionThreshold),
		bitcask.WithSyncWrites(c.Storage.SyncWrites),
		bitcask.WithCompression(c.Storage.Compression),
		bitcask.WithIndexType(indexType),
		bitcask.WithBloomFilterFP(c.Storage.BloomFilterFP),
		bitcask.WithBloomCapacity(c.Storage.BloomCapacity),
		bitcask.WithLogger(logger),
	}
}

package bitcask

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forever-free1/kvs/storage/index"
)

// DefaultCompactionThreshold 日志超过该大小（字节）时在写入后触发压缩
const DefaultCompactionThreshold int64 = 1 << 20

// Options 定义 DB 的配置选项
type Options struct {
	// CompactionThreshold 日志大小超过该值且存在过期数据时触发压缩
	// 日志已经紧凑（没有过期数据）时跳过压缩，即使大小超过该值
	CompactionThreshold int64

	// SyncWrites 每次写入后是否调用 fsync
	// 关闭时写入直接进入内核，同一进程内立即可读
	SyncWrites bool

	// Compression 是否使用 snappy 压缩记录负载
	// 读取时按记录自身的标志解压，与该选项无关
	Compression bool

	// IndexType 内存索引类型，默认 ART
	IndexType index.Type

	// BloomFilterFP 布隆过滤器的期望误判率
	BloomFilterFP float64

	// BloomCapacity 布隆过滤器的预期 key 数量
	BloomCapacity uint

	// Logger 日志记录器，为空时输出到标准错误
	Logger *log.Logger

	// Registerer 监控指标注册器，为空时使用独立的 Registry
	Registerer prometheus.Registerer
}

// Option 定义 Options 的配置函数
type Option func(*Options)

// DefaultOptions 返回默认配置
func DefaultOptions() *Options {
	return &Options{
		CompactionThreshold: DefaultCompactionThreshold,
		IndexType:           index.TypeART,
		BloomFilterFP:       0.01,
		BloomCapacity:       100000,
	}
}

// WithCompactionThreshold 设置触发压缩的日志大小
func WithCompactionThreshold(threshold int64) Option {
	return func(o *Options) {
		o.CompactionThreshold = threshold
	}
}

// WithSyncWrites 设置每次写入后是否 fsync
func WithSyncWrites(sync bool) Option {
	return func(o *Options) {
		o.SyncWrites = sync
	}
}

// WithCompression 设置是否压缩记录负载
func WithCompression(compress bool) Option {
	return func(o *Options) {
		o.Compression = compress
	}
}

// WithIndexType 设置索引类型
func WithIndexType(indexType index.Type) Option {
	return func(o *Options) {
		o.IndexType = indexType
	}
}

// WithBloomFilterFP 设置布隆过滤器的期望误判率
func WithBloomFilterFP(fp float64) Option {
	return func(o *Options) {
		o.BloomFilterFP = fp
	}
}

// WithBloomCapacity 设置布隆过滤器的预期容量
func WithBloomCapacity(n uint) Option {
	return func(o *Options) {
		o.BloomCapacity = n
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithRegisterer 设置监控指标注册器
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
	}
}

func (o *Options) validate() error {
	if o.CompactionThreshold <= 0 {
		return fmt.Errorf("%w: compaction threshold must be positive, got %d", ErrInvalidOptions, o.CompactionThreshold)
	}
	if o.BloomFilterFP <= 0 || o.BloomFilterFP >= 1 {
		return fmt.Errorf("%w: bloom filter fp must be in (0, 1), got %v", ErrInvalidOptions, o.BloomFilterFP)
	}
	if o.BloomCapacity == 0 {
		return fmt.Errorf("%w: bloom capacity must be positive", ErrInvalidOptions)
	}
	return nil
}

func (o *Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return &log.Logger{
		Level:  log.WarnLevel,
		Writer: &log.IOWriter{Writer: os.Stderr},
	}
}

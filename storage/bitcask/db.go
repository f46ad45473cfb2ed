package bitcask

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/index"
)

// DB 表示日志结构存储引擎的核心结构体
// 一个 DB 独占一个日志文件和一份内存索引，二者在 Open 时一起创建，
// 在 Close 时一起释放
type DB struct {
	log         *LogFile           // 追加写入的命令日志
	index       index.Index        // key -> 当前 Set 记录的位置
	bloomFilter *index.BloomFilter // 在查询索引前过滤一定不存在的 key
	options     *Options
	logger      *log.Logger
	metrics     *metrics

	staleBytes  int64  // 被覆盖的 Set 记录与 Remove 记录占用的字节数
	compactions uint64 // 本次打开以来完成的压缩次数
	closed      bool

	mu sync.RWMutex // Get 持读锁，其余操作持写锁
}

// Stat 是 DB 的运行状态
type Stat struct {
	Keys        int    // 存活 key 数量
	LogSize     int64  // 日志文件大小
	StaleBytes  int64  // 可被压缩回收的字节数
	Compactions uint64 // 本次打开以来的压缩次数
}

// Open 打开或创建一个数据库
// 参数：
//   - dir: 数据库目录
//   - opts: 配置选项
//
// 返回：
//   - *DB: 数据库指针
//   - error: 打开错误；日志中有无法解码的记录时返回 ErrMalformedEntry
func Open(dir string, opts ...Option) (*DB, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: 创建数据库目录失败: %w", storage.ErrIO, err)
	}

	logFile, err := OpenLogFile(dir)
	if err != nil {
		return nil, err
	}

	m, err := newMetrics(options.Registerer)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	db := &DB{
		log:         logFile,
		index:       index.New(options.IndexType),
		bloomFilter: index.NewBloomFilter(options.BloomCapacity, options.BloomFilterFP),
		options:     options,
		logger:      options.logger(),
		metrics:     m,
	}

	start := time.Now()
	if err := db.replay(); err != nil {
		logFile.Close()
		m.unregister()
		return nil, fmt.Errorf("回放日志失败: %w", err)
	}
	db.refreshGauges()

	db.logger.Debug().
		Str("path", logFile.Path()).
		Int("keys", db.index.Size()).
		Int64("log_size", logFile.Size()).
		Int64("stale_bytes", db.staleBytes).
		Dur("elapsed", time.Since(start)).
		Msg("database opened")

	return db, nil
}

// replay 从头回放日志，重建索引和布隆过滤器
// 写入位置在 OpenLogFile 时已经位于文件末尾
func (db *DB) replay() error {
	return db.log.Scan(func(offset int64, size uint32, cmd *Command) error {
		switch cmd.Type {
		case CommandSet:
			pos := &storage.Position{Offset: uint64(offset), Size: size}
			if old := db.index.Put(cmd.Key, pos); old != nil {
				db.staleBytes += int64(old.Size)
			}
			db.bloomFilter.Add(cmd.Key)
		case CommandRemove:
			if old := db.index.Delete(cmd.Key); old != nil {
				db.staleBytes += int64(old.Size)
			}
			db.staleBytes += int64(size)
		}
		return nil
	})
}

// Get 根据键获取值
// 参数：
//   - key: 键
//
// 返回：
//   - string: 值
//   - bool: 键是否存在
//   - error: 读取错误；索引指向非 Set 记录时返回 ErrBadLogEntry
func (db *DB) Get(key string) (string, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return "", false, ErrClosed
	}
	db.metrics.ops.WithLabelValues("get").Inc()

	// 布隆过滤器返回 false 时 key 一定不存在
	if !db.bloomFilter.Test(key) {
		return "", false, nil
	}

	pos := db.index.Get(key)
	if pos == nil {
		return "", false, nil
	}

	// 一次定位读取一条记录，不影响追加写入位置
	data, err := db.log.ReadAt(int64(pos.Offset), pos.Size)
	if err != nil {
		return "", false, err
	}
	cmd, err := DecodeRecord(data)
	if err != nil {
		return "", false, fmt.Errorf("偏移量 %d: %w", pos.Offset, err)
	}
	if !cmd.IsSet() || cmd.Key != key {
		return "", false, fmt.Errorf("%w: key %q 的索引指向偏移量 %d 处的 %s", storage.ErrBadLogEntry, key, pos.Offset, cmd)
	}
	return cmd.Value, true, nil
}

// Set 写入键值对，键已存在时覆盖
// 记录追加成功后才更新索引；日志超过阈值时同步执行压缩
func (db *DB) Set(key string, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	pos, err := db.appendCommand(NewSetCommand(key, value), db.options.SyncWrites)
	if err != nil {
		return err
	}

	if old := db.index.Put(key, pos); old != nil {
		db.staleBytes += int64(old.Size)
	}
	db.bloomFilter.Add(key)
	db.metrics.ops.WithLabelValues("set").Inc()
	db.refreshGauges()

	if db.needCompaction() {
		return db.compact()
	}
	return nil
}

// Remove 删除键
// 键不存在时返回 ErrKeyNotFound，且不写入任何记录
func (db *DB) Remove(key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	old := db.index.Get(key)
	if old == nil {
		return storage.ErrKeyNotFound
	}

	pos, err := db.appendCommand(NewRemoveCommand(key), db.options.SyncWrites)
	if err != nil {
		return err
	}

	db.index.Delete(key)
	db.staleBytes += int64(old.Size) + int64(pos.Size)
	db.metrics.ops.WithLabelValues("remove").Inc()
	db.refreshGauges()
	return nil
}

// appendCommand 编码并追加一条命令，返回它的位置
// 同步失败时截掉刚写入的记录，日志保持追加前的状态
func (db *DB) appendCommand(cmd *Command, sync bool) (*storage.Position, error) {
	data, err := cmd.Encode(db.options.Compression)
	if err != nil {
		return nil, err
	}

	offset, err := db.log.Append(data)
	if err != nil {
		return nil, err
	}
	if sync {
		if err := db.log.Sync(); err != nil {
			// 未能落盘的记录不能在重新打开后出现
			if rerr := db.log.rollback(offset); rerr != nil {
				db.logger.Error().Err(rerr).Int64("offset", offset).Msg("rollback after sync failure failed")
			}
			return nil, err
		}
	}

	return &storage.Position{Offset: uint64(offset), Size: uint32(len(data))}, nil
}

func (db *DB) needCompaction() bool {
	return db.log.Size() > db.options.CompactionThreshold && db.staleBytes > 0
}

// Compact 重写日志，只保留每个存活 key 的最新 Set 记录
func (db *DB) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	return db.compact()
}

// compact 执行压缩，调用方必须持有写锁
//
// 重写过程中发生 I/O 错误时日志与索引处于不一致状态，无法恢复，
// 调用方应视为致命错误
func (db *DB) compact() error {
	start := time.Now()
	before := db.log.Size()

	// 第二次独立回放：按文件顺序保留每个 key 的最后一条命令
	latest := make(map[string]*Command)
	if err := db.log.Scan(func(_ int64, _ uint32, cmd *Command) error {
		latest[cmd.Key] = cmd
		return nil
	}); err != nil {
		return fmt.Errorf("压缩前回放日志失败: %w", err)
	}

	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := db.log.Truncate(); err != nil {
		db.logger.Error().Err(err).Str("path", db.log.Path()).Msg("compaction truncate failed")
		return err
	}

	for _, key := range keys {
		cmd := latest[key]
		if !cmd.IsSet() {
			// 最终状态为删除的 key 不写回，也不能留在索引中
			db.index.Delete(key)
			continue
		}
		pos, err := db.appendCommand(cmd, false)
		if err != nil {
			db.logger.Error().Err(err).Str("key", key).Msg("compaction rewrite failed")
			return err
		}
		db.index.Put(key, pos)
	}

	if err := db.log.Sync(); err != nil {
		return err
	}

	db.staleBytes = 0
	db.bloomFilter.Rebuild(db.index.Keys())
	db.compactions++

	elapsed := time.Since(start)
	db.metrics.compactions.Inc()
	db.metrics.compactionDuration.Observe(elapsed.Seconds())
	db.refreshGauges()

	db.logger.Info().
		Int64("before", before).
		Int64("after", db.log.Size()).
		Int("keys", db.index.Size()).
		Dur("elapsed", elapsed).
		Msg("log compacted")
	return nil
}

func (db *DB) refreshGauges() {
	db.metrics.logSize.Set(float64(db.log.Size()))
	db.metrics.staleBytes.Set(float64(db.staleBytes))
	db.metrics.liveKeys.Set(float64(db.index.Size()))
}

// Stat 返回数据库的运行状态
func (db *DB) Stat() Stat {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return Stat{
		Keys:        db.index.Size(),
		LogSize:     db.log.Size(),
		StaleBytes:  db.staleBytes,
		Compactions: db.compactions,
	}
}

// Close 关闭数据库，重复关闭返回 nil
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	err := db.log.Close()
	db.index.Close()
	db.metrics.unregister()
	if err != nil {
		return fmt.Errorf("关闭日志文件失败: %w", err)
	}
	return nil
}

// 确保 DB 实现了 storage.Engine 接口
var _ storage.Engine = (*DB)(nil)

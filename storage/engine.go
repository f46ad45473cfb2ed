package storage

import "errors"

// 引擎层面的错误类型
// 调用方通过 errors.Is 判断
var (
	// ErrKeyNotFound 表示删除一个不存在的键
	ErrKeyNotFound = errors.New("key not found")

	// ErrIO 表示文件打开、读取、写入、同步或截断失败
	ErrIO = errors.New("io error")

	// ErrMalformedEntry 表示日志记录无法解码，说明磁盘数据已损坏
	ErrMalformedEntry = errors.New("malformed log entry")

	// ErrBadLogEntry 表示索引指向的记录不是 Set 命令
	// 出现该错误说明索引与日志已经不一致
	ErrBadLogEntry = errors.New("bad log entry")
)

// Position 表示一条记录在日志文件中的位置
type Position struct {
	Offset uint64 // 记录起始偏移量
	Size   uint32 // 记录总大小（头部 + 负载）
}

// Engine 是存储引擎的抽象接口
// 实现了键值存储的基本操作：Set、Get、Remove、Close
type Engine interface {
	// Set 写入键值对，键已存在时覆盖
	// 参数：
	//   - key: 键
	//   - value: 值
	// 返回：
	//   - error: 写入错误
	Set(key string, value string) error

	// Get 根据键获取值
	// 参数：
	//   - key: 键
	// 返回：
	//   - string: 值
	//   - bool: 键是否存在，不存在不视为错误
	//   - error: 读取错误
	Get(key string) (string, bool, error)

	// Remove 删除键
	// 参数：
	//   - key: 键
	// 返回：
	//   - error: 删除错误，如果键不存在返回 ErrKeyNotFound
	Remove(key string) error

	// Close 关闭存储引擎，释放资源
	Close() error
}

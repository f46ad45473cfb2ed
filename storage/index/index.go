package index

import "github.com/forever-free1/kvs/storage"

// Index 是内存索引的抽象接口
// 负责存储键到日志位置（Position）的映射，只记录当前存活的键
type Index interface {
	// Put 写入或覆盖键的位置
	// 参数：
	//   - key: 键
	//   - pos: 位置指针
	// 返回：
	//   - *storage.Position: 被覆盖的旧位置，不存在返回 nil
	Put(key string, pos *storage.Position) *storage.Position

	// Get 根据键获取位置
	// 返回：
	//   - *storage.Position: 位置指针，不存在返回 nil
	Get(key string) *storage.Position

	// Delete 删除键
	// 返回：
	//   - *storage.Position: 被删除的位置，不存在返回 nil
	Delete(key string) *storage.Position

	// Size 返回索引中的键数量
	Size() int

	// Keys 按字典序返回所有键
	Keys() []string

	// Close 关闭索引，释放资源
	Close()
}

// Type 定义索引类型
type Type int

const (
	// TypeART 使用自适应基数树作为索引（默认）
	TypeART Type = iota
	// TypeMap 使用内置 Map 作为索引
	TypeMap
)

// String 返回索引类型名称
func (t Type) String() string {
	switch t {
	case TypeART:
		return "art"
	case TypeMap:
		return "map"
	default:
		return "unknown"
	}
}

// ParseType 将名称解析为索引类型
func ParseType(name string) (Type, bool) {
	switch name {
	case "art", "":
		return TypeART, true
	case "map":
		return TypeMap, true
	default:
		return TypeART, false
	}
}

// New 根据类型创建索引实例
func New(t Type) Index {
	if t == TypeMap {
		return NewMapIndex()
	}
	return NewARTIndex()
}

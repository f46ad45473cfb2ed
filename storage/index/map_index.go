package index

import (
	"sort"

	"github.com/forever-free1/kvs/storage"
)

// MapIndex 是基于 Go 内置 map 的内存索引实现
type MapIndex struct {
	data map[string]*storage.Position
}

// NewMapIndex 创建一个新的 Map 索引实例
func NewMapIndex() *MapIndex {
	return &MapIndex{
		data: make(map[string]*storage.Position),
	}
}

// Put 写入键的位置，返回旧位置
func (idx *MapIndex) Put(key string, pos *storage.Position) *storage.Position {
	old := idx.data[key]
	idx.data[key] = pos
	return old
}

// Get 根据键获取位置
func (idx *MapIndex) Get(key string) *storage.Position {
	return idx.data[key]
}

// Delete 删除键，返回被删除的位置
func (idx *MapIndex) Delete(key string) *storage.Position {
	old, exists := idx.data[key]
	if !exists {
		return nil
	}
	delete(idx.data, key)
	return old
}

// Size 返回键数量
func (idx *MapIndex) Size() int {
	return len(idx.data)
}

// Keys 返回排序后的所有键
func (idx *MapIndex) Keys() []string {
	keys := make([]string, 0, len(idx.data))
	for k := range idx.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close 清空 map，释放内存
func (idx *MapIndex) Close() {
	idx.data = make(map[string]*storage.Position)
}

var _ Index = (*MapIndex)(nil)

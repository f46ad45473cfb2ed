package index

import (
	"sort"

	art "github.com/plar/go-adaptive-radix-tree"

	"github.com/forever-free1/kvs/storage"
)

// ARTIndex 是基于自适应基数树（Adaptive Radix Tree）的内存索引实现
// 空键单独存放，不依赖树对零长度键的处理
type ARTIndex struct {
	tree  art.Tree
	empty *storage.Position // 空键的位置
}

// NewARTIndex 创建一个新的 ART 索引实例
func NewARTIndex() *ARTIndex {
	return &ARTIndex{
		tree: art.New(),
	}
}

// Put 写入键的位置
// 参数：
//   - key: 键
//   - pos: 位置指针
//
// 返回：
//   - *storage.Position: 旧位置，新键返回 nil
func (idx *ARTIndex) Put(key string, pos *storage.Position) *storage.Position {
	if key == "" {
		old := idx.empty
		idx.empty = pos
		return old
	}
	old, updated := idx.tree.Insert(art.Key(key), pos)
	if !updated || old == nil {
		return nil
	}
	return old.(*storage.Position)
}

// Get 根据键获取位置，不存在返回 nil
func (idx *ARTIndex) Get(key string) *storage.Position {
	if key == "" {
		return idx.empty
	}
	value, found := idx.tree.Search(art.Key(key))
	if !found {
		return nil
	}
	return value.(*storage.Position)
}

// Delete 从 ART 索引中删除键
func (idx *ARTIndex) Delete(key string) *storage.Position {
	if key == "" {
		old := idx.empty
		idx.empty = nil
		return old
	}
	value, deleted := idx.tree.Delete(art.Key(key))
	if !deleted || value == nil {
		return nil
	}
	return value.(*storage.Position)
}

// Size 返回键数量
func (idx *ARTIndex) Size() int {
	if idx.empty != nil {
		return idx.tree.Size() + 1
	}
	return idx.tree.Size()
}

// Keys 按字节序返回所有键
func (idx *ARTIndex) Keys() []string {
	keys := make([]string, 0, idx.Size())
	if idx.empty != nil {
		keys = append(keys, "")
	}
	idx.tree.ForEach(func(node art.Node) bool {
		keys = append(keys, string(node.Key()))
		return true
	}, art.TraverseLeaf)
	// 前缀键的叶子遍历顺序依赖节点类型
	sort.Strings(keys)
	return keys
}

// Close 丢弃整棵树
func (idx *ARTIndex) Close() {
	idx.tree = art.New()
	idx.empty = nil
}

var _ Index = (*ARTIndex)(nil)

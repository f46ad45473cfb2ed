package index

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 包装布隆过滤器
// 用于在查询索引前快速判断一个 key 是否一定不存在
//
// 布隆过滤器不支持删除，被删除的 key 仍会命中，
// 由索引做二次确认；压缩后通过 Rebuild 清理
type BloomFilter struct {
	filter *bloom.BloomFilter
	n      uint
	fp     float64
}

// NewBloomFilter 创建一个新的布隆过滤器
// 参数：
//   - n: 预期存储的元素数量
//   - fp: 期望的误判率
//
// 返回：
//   - *BloomFilter: 布隆过滤器指针
func NewBloomFilter(n uint, fp float64) *BloomFilter {
	// 使用 NewWithEstimates 自动计算最优的 m 和 k
	return &BloomFilter{
		filter: bloom.NewWithEstimates(n, fp),
		n:      n,
		fp:     fp,
	}
}

// Add 添加一个 key
func (bf *BloomFilter) Add(key string) {
	bf.filter.AddString(key)
}

// Test 测试一个 key 是否可能存在
// 返回 false 表示一定不存在
func (bf *BloomFilter) Test(key string) bool {
	return bf.filter.TestString(key)
}

// Rebuild 清空过滤器并重新加入给定的 key
// 存活 key 数超过预期容量时按新的数量重新估算大小
func (bf *BloomFilter) Rebuild(keys []string) {
	if uint(len(keys)) > bf.n {
		bf.n = uint(len(keys)) * 2
		bf.filter = bloom.NewWithEstimates(bf.n, bf.fp)
	} else {
		bf.filter.ClearAll()
	}
	for _, k := range keys {
		bf.filter.AddString(k)
	}
}

// Cap 返回位数组容量
func (bf *BloomFilter) Cap() uint {
	return bf.filter.Cap()
}

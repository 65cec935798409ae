package codec

import (
	"fmt"

	"cryptid-sol/internal/types"
)

// IndexTable 双射的 key ↔ index 表，每次构造交易时临时建立，只有索引会被持久化
type IndexTable struct {
	keys  []types.Pubkey
	index map[types.Pubkey]uint8
}

func NewIndexTable(capacity int) *IndexTable {
	return &IndexTable{
		keys:  make([]types.Pubkey, 0, capacity),
		index: make(map[types.Pubkey]uint8, capacity),
	}
}

// NewIndexTableFrom 按给定顺序建表，重复 key 只保留首次出现的位置
func NewIndexTableFrom(keys []types.Pubkey) (*IndexTable, error) {
	t := NewIndexTable(len(keys))
	for _, k := range keys {
		if _, err := t.Add(k); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add 追加 key 并返回其索引；已存在时返回原索引
func (t *IndexTable) Add(key types.Pubkey) (uint8, error) {
	if idx, ok := t.index[key]; ok {
		return idx, nil
	}
	if len(t.keys) > 255 {
		return 0, fmt.Errorf("%w: key=%s", ErrTooManyAccounts, key)
	}
	idx := uint8(len(t.keys))
	t.keys = append(t.keys, key)
	t.index[key] = idx
	return idx, nil
}

func (t *IndexTable) Index(key types.Pubkey) (uint8, bool) {
	idx, ok := t.index[key]
	return idx, ok
}

func (t *IndexTable) Key(index uint8) (types.Pubkey, bool) {
	if int(index) >= len(t.keys) {
		return types.Pubkey{}, false
	}
	return t.keys[index], true
}

func (t *IndexTable) Len() int {
	return len(t.keys)
}

// Keys 按索引顺序返回全部 key（返回副本）
func (t *IndexTable) Keys() []types.Pubkey {
	out := make([]types.Pubkey, len(t.keys))
	copy(out, t.keys)
	return out
}

package host

import (
	"bytes"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/types"
)

// Account 账本中的一个账户
type Account struct {
	Lamports   uint64
	Owner      types.Pubkey
	Data       []byte
	Executable bool
}

func (a *Account) clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = make([]byte, len(a.Data))
		copy(c.Data, a.Data)
	}
	return &c
}

func (a *Account) equal(other *Account) bool {
	return a.Lamports == other.Lamports &&
		a.Owner == other.Owner &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Data, other.Data)
}

// IsSystemOwnedEmpty 余额为 0、无数据且归 System Program 所有（即从未上链）
func (a *Account) IsSystemOwnedEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner == consts.SystemProgram
}

// AccountInfo 指令执行期间可见的账户句柄，多个句柄可指向同一个 Account
type AccountInfo struct {
	Key        types.Pubkey
	IsSigner   bool
	IsWritable bool
	*Account
}

// FindAccount 按 key 在句柄列表中查找
func FindAccount(infos []*AccountInfo, key types.Pubkey) (*AccountInfo, bool) {
	for _, info := range infos {
		if info.Key == key {
			return info, true
		}
	}
	return nil, false
}

// Keys 提取句柄列表的 key
func Keys(infos []*AccountInfo) []types.Pubkey {
	keys := make([]types.Pubkey, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys
}

// Rent 租金计算
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: consts.LamportsPerByteYear,
		ExemptionThreshold:  consts.ExemptionThreshold,
	}
}

// MinimumBalance 免租所需最低余额
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (consts.AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

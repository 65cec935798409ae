package program

import (
	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/types"
)

// IndexSpace 一条指令可见账户的规范顺序：固定角色的框架账户在前，调用方追加的账户在后。
// 每次调用临时构建，从不持久化。
type IndexSpace struct {
	name      string
	accounts  []*host.AccountInfo
	framework int
}

// ProposeIndexSpace propose_transaction 的索引空间：
//
//	#0 - identity 账户
//	#1 - DID 账户
//	#2 - DID 程序
//	#3 - authority（提案者，付费）
//	#4 - 交易账户
//	#5 - System Program
//	#6.. - 参与账户
func ProposeIndexSpace(accounts []*host.AccountInfo) (*IndexSpace, error) {
	return newIndexSpace("propose", accounts, consts.ProposeFrameworkAccounts)
}

// ExecuteIndexSpace 编码子指令与 controller chain 所引用的索引空间：
//
//	#0 - identity 账户
//	#1 - DID 账户
//	#2 - DID 程序
//	#3 - 签名者
//	#4.. - 参与账户
//
// skip 为夹在框架账户与参与账户之间、不进入索引空间的账户数
// （execute_transaction 的交易账户与资金接收账户）。
func ExecuteIndexSpace(accounts []*host.AccountInfo, skip int) (*IndexSpace, error) {
	if len(accounts) < consts.ExecuteFrameworkAccounts+skip {
		return nil, ErrNotEnoughAccounts
	}
	merged := make([]*host.AccountInfo, 0, len(accounts)-skip)
	merged = append(merged, accounts[:consts.ExecuteFrameworkAccounts]...)
	merged = append(merged, accounts[consts.ExecuteFrameworkAccounts+skip:]...)
	return newIndexSpace("execute", merged, consts.ExecuteFrameworkAccounts)
}

func newIndexSpace(name string, accounts []*host.AccountInfo, framework int) (*IndexSpace, error) {
	if len(accounts) < framework {
		return nil, ErrNotEnoughAccounts
	}
	return &IndexSpace{name: name, accounts: accounts, framework: framework}, nil
}

func (s *IndexSpace) Len() int {
	return len(s.accounts)
}

func (s *IndexSpace) Account(i int) *host.AccountInfo {
	return s.accounts[i]
}

// Participants 框架账户之后的参与账户
func (s *IndexSpace) Participants() []*host.AccountInfo {
	return s.accounts[s.framework:]
}

func (s *IndexSpace) Keys() []types.Pubkey {
	return host.Keys(s.accounts)
}

// ResolveIndexes 将索引映射为账户句柄，任一索引越界即返回 ErrIndexOutOfRange
func (s *IndexSpace) ResolveIndexes(indexes []uint8) ([]*host.AccountInfo, error) {
	resolved := make([]*host.AccountInfo, 0, len(indexes))
	for _, i := range indexes {
		if int(i) >= len(s.accounts) {
			return nil, indexOutOfRange(s.name, i, len(s.accounts))
		}
		resolved = append(resolved, s.accounts[i])
	}
	return resolved, nil
}

// checkIndexes 校验索引均小于 limit
func checkIndexes(space string, indexes []uint8, limit int) error {
	for _, i := range indexes {
		if int(i) >= limit {
			return indexOutOfRange(space, i, limit)
		}
	}
	return nil
}

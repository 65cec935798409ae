package state

import (
	"encoding/binary"
	"fmt"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
)

// IdentityMode identity 账户的存在形态
type IdentityMode uint8

const (
	// Generative 从未上链的虚拟账户：余额为 0 且归 System Program 所有，仅凭派生规则成立
	Generative IdentityMode = iota
	// Persisted 已上链，持有 IdentityState
	Persisted
)

func (m IdentityMode) String() string {
	if m == Generative {
		return "Generative"
	}
	return "Persisted"
}

// IdentityState 已上链 identity 账户的数据。
// 布局：discriminator(8) | middleware(option<32>) | index(u32)
type IdentityState struct {
	Middleware *types.Pubkey // 若设置，执行前必须经过该 middleware 审批
	Index      uint32
}

// IdentitySize 已上链 identity 账户的空间
const IdentitySize = discriminatorSize + 1 + pubkeySize + 4

func (s *IdentityState) Marshal() ([]byte, error) {
	return marshalAccount(consts.CryptidAccountDiscriminator, *s)
}

func UnmarshalIdentityState(data []byte) (*IdentityState, error) {
	s := &IdentityState{}
	if err := unmarshalAccount(consts.CryptidAccountDiscriminator, data, s); err != nil {
		return nil, fmt.Errorf("decode identity state: %w", err)
	}
	return s, nil
}

// IdentityAccount 经过派生校验的 identity 账户引用，创建后不再修改
type IdentityAccount struct {
	Address    types.Pubkey
	DIDProgram types.Pubkey
	DID        types.Pubkey
	Index      uint32
	Bump       uint8
	Mode       IdentityMode
	State      *IdentityState // Generative 时为 nil
}

// Seeds 签名子调用所需的完整种子（含 bump）
func (a *IdentityAccount) Seeds() [][]byte {
	return append(IdentitySeeds(a.DIDProgram, a.DID, a.Index), []byte{a.Bump})
}

// RequiredMiddleware 该 identity 要求的审批 middleware，Generative 账户永远没有
func (a *IdentityAccount) RequiredMiddleware() *types.Pubkey {
	if a.State == nil {
		return nil
	}
	return a.State.Middleware
}

// IdentitySeeds ["cryptid_account", did_program, did, index(u32 LE)]，不含 bump
func IdentitySeeds(didProgram, did types.Pubkey, index uint32) [][]byte {
	var indexBytes [4]byte
	binary.LittleEndian.PutUint32(indexBytes[:], index)
	return [][]byte{
		[]byte(consts.IdentitySeedPrefix),
		didProgram[:],
		did[:],
		indexBytes[:],
	}
}

// DeriveIdentityAddress 用调用方给出的 bump 计算 identity 地址
func DeriveIdentityAddress(programID, didProgram, did types.Pubkey, index uint32, bump uint8) (types.Pubkey, error) {
	seeds := append(IdentitySeeds(didProgram, did, index), []byte{bump})
	addr, err := common.CreateProgramAddress(seeds, programID.Common())
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("create identity address: %w", err)
	}
	return types.FromCommon(addr), nil
}

// FindIdentityAddress 搜索规范 bump（从 255 向下第一个不在曲线上的地址）
func FindIdentityAddress(programID, didProgram, did types.Pubkey, index uint32) (types.Pubkey, uint8, error) {
	addr, bump, err := common.FindProgramAddress(IdentitySeeds(didProgram, did, index), programID.Common())
	if err != nil {
		return types.Pubkey{}, 0, fmt.Errorf("find identity address: %w", err)
	}
	return types.FromCommon(addr), bump, nil
}

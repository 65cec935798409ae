package codec

import (
	"fmt"

	"cryptid-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
	solanatypes "github.com/blocto/solana-go-sdk/types"
)

// AbbreviatedInstruction 一条以索引引用账户的子指令。
// 布局（borsh）：program_id(u8) | accounts(vec<meta>) | data(vec<u8>)
type AbbreviatedInstruction struct {
	ProgramID uint8
	Accounts  []AbbreviatedAccountMeta
	Data      []byte
}

// InstructionSize 描述一条子指令的定长部分，用于预先计算存储空间
type InstructionSize struct {
	Accounts int
	DataLen  int
}

// CalculateSize 子指令的链上大小：program_id(1) + vec 前缀(4) + 2*accounts + vec 前缀(4) + data
func (s InstructionSize) CalculateSize() int {
	return 1 + 4 + AccountMetaSize*s.Accounts + 4 + s.DataLen
}

func (ix *AbbreviatedInstruction) Size() InstructionSize {
	return InstructionSize{Accounts: len(ix.Accounts), DataLen: len(ix.Data)}
}

// SizesOf 批量提取子指令尺寸
func SizesOf(ixs []AbbreviatedInstruction) []InstructionSize {
	sizes := make([]InstructionSize, 0, len(ixs))
	for i := range ixs {
		sizes = append(sizes, ixs[i].Size())
	}
	return sizes
}

// Indexes 返回该子指令引用的全部索引（program 在前，账户按顺序在后）
func (ix *AbbreviatedInstruction) Indexes() []uint8 {
	out := make([]uint8, 0, len(ix.Accounts)+1)
	out = append(out, ix.ProgramID)
	for _, m := range ix.Accounts {
		out = append(out, m.Key)
	}
	return out
}

// Encode 将具体指令中的每个公钥替换为其在映射中的位置
func Encode(ix solanatypes.Instruction, table *IndexTable) (AbbreviatedInstruction, error) {
	programIndex, ok := table.Index(types.FromCommon(ix.ProgramID))
	if !ok {
		return AbbreviatedInstruction{}, fmt.Errorf("%w: program %s", ErrUnknownAccount, ix.ProgramID.ToBase58())
	}

	metas := make([]AbbreviatedAccountMeta, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		idx, ok := table.Index(types.FromCommon(meta.PubKey))
		if !ok {
			return AbbreviatedInstruction{}, fmt.Errorf("%w: account %s", ErrUnknownAccount, meta.PubKey.ToBase58())
		}
		metas = append(metas, AbbreviatedAccountMeta{
			Key:  idx,
			Meta: NewAccountMetaProps(meta.IsSigner, meta.IsWritable).Bits(),
		})
	}

	data := make([]byte, len(ix.Data))
	copy(data, ix.Data)
	return AbbreviatedInstruction{
		ProgramID: programIndex,
		Accounts:  metas,
		Data:      data,
	}, nil
}

// Decode 纯位置解码：accounts[index]，不做任何权限推导（仅还原 2-bit 掩码）
func Decode(ix *AbbreviatedInstruction, accounts []types.Pubkey) (solanatypes.Instruction, error) {
	if int(ix.ProgramID) >= len(accounts) {
		return solanatypes.Instruction{}, fmt.Errorf("%w: program index=%d, accounts=%d", ErrIndexOutOfBounds, ix.ProgramID, len(accounts))
	}

	metas := make([]solanatypes.AccountMeta, 0, len(ix.Accounts))
	for _, m := range ix.Accounts {
		if int(m.Key) >= len(accounts) {
			return solanatypes.Instruction{}, fmt.Errorf("%w: index=%d, accounts=%d", ErrIndexOutOfBounds, m.Key, len(accounts))
		}
		props, err := m.Props()
		if err != nil {
			return solanatypes.Instruction{}, err
		}
		metas = append(metas, solanatypes.AccountMeta{
			PubKey:     common.PublicKey(accounts[m.Key]),
			IsSigner:   props.Contains(IsSigner),
			IsWritable: props.Contains(IsWritable),
		})
	}

	return solanatypes.Instruction{
		ProgramID: common.PublicKey(accounts[ix.ProgramID]),
		Accounts:  metas,
		Data:      ix.Data,
	}, nil
}

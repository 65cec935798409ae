// Package client 链下构造 cryptid 指令：建立执行索引空间、编码子指令、计算账户大小，
// 以及从集群读取交易记录。
package client

import (
	"fmt"

	"cryptid-sol/internal/codec"
	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/program"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
	solanatypes "github.com/blocto/solana-go-sdk/types"
)

// Identity 已派生的 identity 账户
type Identity struct {
	Address types.Pubkey
	DID     types.Pubkey
	Index   uint32
	Bump    uint8
}

// DeriveIdentity 计算 DID 在给定 index 下的 identity 地址与规范 bump
func DeriveIdentity(programID, didProgram, did types.Pubkey, index uint32) (Identity, error) {
	addr, bump, err := state.FindIdentityAddress(programID, didProgram, did, index)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Address: addr, DID: did, Index: index, Bump: bump}, nil
}

// Builder 按执行索引空间构造交易：#0 identity, #1 DID, #2 DID 程序, #3 签名者，
// 之后为去重后的参与账户。同一个 Builder 产出的 propose 与 execute 指令共享同一张索引表。
type Builder struct {
	programID   types.Pubkey
	didProgram  types.Pubkey
	identity    Identity
	signer      types.Pubkey
	table       *codec.IndexTable
	privileges  map[types.Pubkey]codec.AccountMetaProps
	controllers []uint8
}

func NewBuilder(programID, didProgram types.Pubkey, identity Identity, signer types.Pubkey) (*Builder, error) {
	table, err := codec.NewIndexTableFrom([]types.Pubkey{identity.Address, identity.DID, didProgram, signer})
	if err != nil {
		return nil, err
	}
	if table.Len() != consts.ExecuteFrameworkAccounts {
		return nil, fmt.Errorf("framework accounts must be distinct: identity=%s, did=%s, didProgram=%s, signer=%s",
			identity.Address, identity.DID, didProgram, signer)
	}
	return &Builder{
		programID:  programID,
		didProgram: didProgram,
		identity:   identity,
		signer:     signer,
		table:      table,
		privileges: make(map[types.Pubkey]codec.AccountMetaProps),
	}, nil
}

func (b *Builder) Identity() Identity {
	return b.identity
}

// WithControllers 设置 controller 链（从直接控制 DID 的 controller 开始）
func (b *Builder) WithControllers(controllers ...types.Pubkey) error {
	chain := make([]uint8, 0, len(controllers))
	for _, c := range controllers {
		idx, err := b.table.Add(c)
		if err != nil {
			return err
		}
		chain = append(chain, idx)
	}
	b.controllers = chain
	return nil
}

// AddAccount 追加参与账户（不需要出现在子指令中的账户，如 middleware 需要读取的账户）
func (b *Builder) AddAccount(key types.Pubkey) (uint8, error) {
	return b.table.Add(key)
}

// Encode 登记子指令引用的所有 key 后编码
func (b *Builder) Encode(ixs ...solanatypes.Instruction) ([]codec.AbbreviatedInstruction, error) {
	for _, ix := range ixs {
		if _, err := b.table.Add(types.FromCommon(ix.ProgramID)); err != nil {
			return nil, err
		}
		for _, meta := range ix.Accounts {
			key := types.FromCommon(meta.PubKey)
			if _, err := b.table.Add(key); err != nil {
				return nil, err
			}
			b.privileges[key] |= codec.NewAccountMetaProps(meta.IsSigner, meta.IsWritable)
		}
	}

	encoded := make([]codec.AbbreviatedInstruction, 0, len(ixs))
	for _, ix := range ixs {
		e, err := codec.Encode(ix, b.table)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, e)
	}
	return encoded, nil
}

// Participants 框架账户之后的参与账户，即交易记录中保存的账户列表
func (b *Builder) Participants() []types.Pubkey {
	return b.table.Keys()[consts.ExecuteFrameworkAccounts:]
}

// DirectExecute 构造 direct_execute 指令
func (b *Builder) DirectExecute(ixs []solanatypes.Instruction, flags program.ExecuteFlags) (solanatypes.Instruction, error) {
	encoded, err := b.Encode(ixs...)
	if err != nil {
		return solanatypes.Instruction{}, err
	}
	data, err := program.DirectExecuteArgs{
		ControllerChain: b.controllers,
		Instructions:    encoded,
		IdentityBump:    b.identity.Bump,
		Flags:           uint8(flags),
		IdentityIndex:   b.identity.Index,
	}.Data()
	if err != nil {
		return solanatypes.Instruction{}, err
	}

	metas := b.frameworkMetas(true)
	metas = append(metas, b.participantMetas()...)
	return solanatypes.Instruction{ProgramID: b.programID.Common(), Accounts: metas, Data: data}, nil
}

// Propose 构造 propose_transaction 指令。authority 出资并成为第一个授权签名者；
// txAccount 须为新生成的密钥对，并对交易签名。
func (b *Builder) Propose(
	authority, txAccount types.Pubkey,
	ixs []solanatypes.Instruction,
	extraSigners ...types.Pubkey,
) (solanatypes.Instruction, error) {
	encoded, err := b.Encode(ixs...)
	if err != nil {
		return solanatypes.Instruction{}, err
	}
	participants := b.Participants()
	if len(participants) > 255 {
		return solanatypes.Instruction{}, fmt.Errorf("%w: participants=%d", codec.ErrTooManyAccounts, len(participants))
	}
	data, err := program.ProposeTransactionArgs{
		Instructions: encoded,
		AccountCount: uint8(len(participants)),
		ExtraSigners: extraSigners,
	}.Data()
	if err != nil {
		return solanatypes.Instruction{}, err
	}

	metas := []solanatypes.AccountMeta{
		{PubKey: b.identity.Address.Common()},
		{PubKey: b.identity.DID.Common()},
		{PubKey: b.didProgram.Common()},
		{PubKey: authority.Common(), IsSigner: true, IsWritable: true},
		{PubKey: txAccount.Common(), IsSigner: true, IsWritable: true},
		{PubKey: consts.SystemProgram.Common()},
	}
	for _, key := range participants {
		metas = append(metas, solanatypes.AccountMeta{PubKey: key.Common()})
	}
	return solanatypes.Instruction{ProgramID: b.programID.Common(), Accounts: metas, Data: data}, nil
}

// Execute 构造 execute_transaction 指令；必须在同一个 Builder 的 Propose 之后调用
func (b *Builder) Execute(
	txAccount, recipient types.Pubkey,
	middleware *types.Pubkey,
	flags program.ExecuteFlags,
) (solanatypes.Instruction, error) {
	data, err := program.ExecuteTransactionArgs{
		ControllerChain: b.controllers,
		Middleware:      middleware,
		IdentityBump:    b.identity.Bump,
		Flags:           uint8(flags),
		IdentityIndex:   b.identity.Index,
	}.Data()
	if err != nil {
		return solanatypes.Instruction{}, err
	}

	metas := b.frameworkMetas(false)
	metas = append(metas,
		solanatypes.AccountMeta{PubKey: txAccount.Common(), IsWritable: true},
		solanatypes.AccountMeta{PubKey: recipient.Common(), IsWritable: true},
	)
	metas = append(metas, b.participantMetas()...)
	return solanatypes.Instruction{ProgramID: b.programID.Common(), Accounts: metas, Data: data}, nil
}

// Approve 构造 approve_execution 指令，一般由 middleware 程序以子调用发出；
// identity 为交易记录中保存的 identity 账户
func Approve(programID, middleware, txAccount, identity types.Pubkey) (solanatypes.Instruction, error) {
	data, err := program.ApproveExecutionArgs{}.Data()
	if err != nil {
		return solanatypes.Instruction{}, err
	}
	return solanatypes.Instruction{
		ProgramID: programID.Common(),
		Accounts: []solanatypes.AccountMeta{
			{PubKey: middleware.Common(), IsSigner: true},
			{PubKey: txAccount.Common(), IsWritable: true},
			{PubKey: identity.Common()},
		},
		Data: data,
	}, nil
}

// frameworkMetas identity 不在外层签名（由程序以派生种子代签），签名者始终签名
func (b *Builder) frameworkMetas(identityWritable bool) []solanatypes.AccountMeta {
	return []solanatypes.AccountMeta{
		{PubKey: b.identity.Address.Common(), IsWritable: identityWritable || b.writable(b.identity.Address)},
		{PubKey: b.identity.DID.Common(), IsWritable: b.writable(b.identity.DID)},
		{PubKey: b.didProgram.Common()},
		{PubKey: b.signer.Common(), IsSigner: true, IsWritable: b.writable(b.signer)},
	}
}

func (b *Builder) participantMetas() []solanatypes.AccountMeta {
	participants := b.Participants()
	metas := make([]solanatypes.AccountMeta, 0, len(participants))
	for _, key := range participants {
		p := b.privileges[key]
		metas = append(metas, solanatypes.AccountMeta{
			PubKey:     common.PublicKey(key),
			IsSigner:   p.Contains(codec.IsSigner),
			IsWritable: p.Contains(codec.IsWritable),
		})
	}
	return metas
}

func (b *Builder) writable(key types.Pubkey) bool {
	return b.privileges[key].Contains(codec.IsWritable)
}

// RecordSize 交易记录的精确大小
func RecordSize(ixs []codec.AbbreviatedInstruction, participants, signers int) int {
	return state.CalculateTransactionSize(participants, codec.SizesOf(ixs), signers)
}

// RentExemptMinimum 交易账户免租所需余额（即执行后回收的金额）
func RentExemptMinimum(size int) uint64 {
	return host.DefaultRent().MinimumBalance(size)
}

package program_test

import (
	"crypto/rand"
	"errors"
	"testing"

	"cryptid-sol/internal/client"
	"cryptid-sol/internal/codec"
	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/did"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/program"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	solanatypes "github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fundedLamports = 10_000_000_000

func newKey(t *testing.T) types.Pubkey {
	var k types.Pubkey
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

type fixture struct {
	ledger    *host.Ledger
	dids      *did.StaticService
	authority types.Pubkey
	did       types.Pubkey
	identity  client.Identity
	events    []*program.Event
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		ledger:    host.NewLedger(),
		dids:      did.NewStaticService(),
		authority: newKey(t),
	}
	var err error
	f.did, err = f.dids.RegisterGenerative(f.authority)
	require.NoError(t, err)
	f.identity, err = client.DeriveIdentity(consts.CryptidProgram, consts.DidProgram, f.did, 0)
	require.NoError(t, err)

	p := program.New(f.dids, program.WithEventSink(program.EventSinkFunc(func(e *program.Event) error {
		f.events = append(f.events, e)
		return nil
	})))
	f.ledger.Register(consts.CryptidProgram, p)
	f.ledger.Airdrop(f.authority, fundedLamports)
	return f
}

func (f *fixture) builder(t *testing.T, signer types.Pubkey) *client.Builder {
	b, err := client.NewBuilder(consts.CryptidProgram, consts.DidProgram, f.identity, signer)
	require.NoError(t, err)
	return b
}

// ping 要求 #0 签名，记录调用次数
func (f *fixture) registerPing(t *testing.T, calls *int) types.Pubkey {
	id := newKey(t)
	f.ledger.Register(id, host.ProgramFunc(func(ctx *host.Context, _ []byte) error {
		if len(ctx.Accounts) == 0 || !ctx.Accounts[0].IsSigner {
			return host.ErrMissingSignature
		}
		*calls++
		return nil
	}))
	return id
}

func (f *fixture) record(t *testing.T, tx types.Pubkey) *state.TransactionRecord {
	acc, ok := f.ledger.GetAccount(tx)
	require.True(t, ok)
	r, err := state.UnmarshalTransactionRecord(acc.Data)
	require.NoError(t, err)
	return r
}

func (f *fixture) frameworkMetas(signer types.Pubkey) []solanatypes.AccountMeta {
	return []solanatypes.AccountMeta{
		{PubKey: f.identity.Address.Common(), IsWritable: true},
		{PubKey: f.did.Common()},
		{PubKey: consts.DidProgram.Common()},
		{PubKey: signer.Common(), IsSigner: true, IsWritable: true},
	}
}

// proposeRaw 直接以编码后的子指令提案，trailing 为参与账户
func (f *fixture) proposeRaw(t *testing.T, tx types.Pubkey, ixs []codec.AbbreviatedInstruction, trailing ...types.Pubkey) error {
	data, err := program.ProposeTransactionArgs{Instructions: ixs, AccountCount: uint8(len(trailing))}.Data()
	require.NoError(t, err)
	metas := []solanatypes.AccountMeta{
		{PubKey: f.identity.Address.Common()},
		{PubKey: f.did.Common()},
		{PubKey: consts.DidProgram.Common()},
		{PubKey: f.authority.Common(), IsSigner: true, IsWritable: true},
		{PubKey: tx.Common(), IsSigner: true, IsWritable: true},
		{PubKey: consts.SystemProgram.Common()},
	}
	for _, k := range trailing {
		metas = append(metas, solanatypes.AccountMeta{PubKey: k.Common()})
	}
	return f.ledger.Submit(solanatypes.Instruction{ProgramID: consts.CryptidProgram.Common(), Accounts: metas, Data: data},
		f.authority, tx)
}

func (f *fixture) executeRaw(t *testing.T, tx, recipient types.Pubkey, args program.ExecuteTransactionArgs, trailing ...types.Pubkey) error {
	args.IdentityBump = f.identity.Bump
	data, err := args.Data()
	require.NoError(t, err)
	metas := f.frameworkMetas(f.authority)
	metas = append(metas,
		solanatypes.AccountMeta{PubKey: tx.Common(), IsWritable: true},
		solanatypes.AccountMeta{PubKey: recipient.Common(), IsWritable: true},
	)
	for _, k := range trailing {
		metas = append(metas, solanatypes.AccountMeta{PubKey: k.Common()})
	}
	return f.ledger.Submit(solanatypes.Instruction{ProgramID: consts.CryptidProgram.Common(), Accounts: metas, Data: data},
		f.authority)
}

// 一个参与账户、一条子指令引用索引 4（4 个框架账户之后的第一个）
func TestProposeExecute_AtMostOnce(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	tx := newKey(t)
	recipient := newKey(t)

	ixs := []codec.AbbreviatedInstruction{{
		ProgramID: 4,
		Accounts:  []codec.AbbreviatedAccountMeta{{Key: 0, Meta: codec.IsSigner.Bits()}},
		Data:      []byte{1},
	}}
	require.NoError(t, f.proposeRaw(t, tx, ixs, ping))

	record := f.record(t, tx)
	assert.Equal(t, state.Ready, record.State)
	assert.Equal(t, []types.Pubkey{ping}, record.Accounts)
	assert.Equal(t, []types.Pubkey{f.authority}, record.Signers)
	assert.Equal(t, f.identity.Address, record.IdentityAccount)
	assert.Equal(t, f.did, record.DID)

	acc, _ := f.ledger.GetAccount(tx)
	size := client.RecordSize(ixs, 1, 1)
	assert.Len(t, acc.Data, size)
	assert.Equal(t, consts.CryptidProgram, acc.Owner)
	held := acc.Lamports
	assert.Equal(t, client.RentExemptMinimum(size), held)

	require.NoError(t, f.executeRaw(t, tx, recipient, program.ExecuteTransactionArgs{}, ping))
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(0), f.ledger.Balance(tx))
	assert.Equal(t, held, f.ledger.Balance(recipient))
	assert.Equal(t, state.Executed, f.record(t, tx).State)

	err := f.executeRaw(t, tx, recipient, program.ExecuteTransactionArgs{}, ping)
	require.ErrorIs(t, err, program.ErrInvalidTransactionState)
	var stateErr *program.InvalidTransactionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, state.Ready, stateErr.Expected)
	assert.Equal(t, state.Executed, stateErr.Found)
	assert.Equal(t, 1, calls)
	assert.Equal(t, held, f.ledger.Balance(recipient))

	require.Len(t, f.events, 2)
	assert.Equal(t, program.EventProposed, f.events[0].Type)
	assert.Equal(t, program.EventExecuted, f.events[1].Type)
	assert.Equal(t, held, f.events[1].Lamports)
	assert.Equal(t, recipient, f.events[1].Recipient)
}

func TestPropose_IndexOutOfRange(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	tx := newKey(t)

	ixs := []codec.AbbreviatedInstruction{{
		ProgramID: 5,
		Accounts:  []codec.AbbreviatedAccountMeta{{Key: 0, Meta: codec.IsSigner.Bits()}},
	}}
	err := f.proposeRaw(t, tx, ixs, ping)
	require.ErrorIs(t, err, program.ErrIndexOutOfRange)
	code, ok := program.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, program.CodeIndexOutOfRange, code)

	acc, _ := f.ledger.GetAccount(tx)
	assert.True(t, acc.IsSystemOwnedEmpty())
	assert.Equal(t, uint64(fundedLamports), f.ledger.Balance(f.authority))
	assert.Empty(t, f.events)
}

func TestPropose_InvalidMetaBits(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)

	ixs := []codec.AbbreviatedInstruction{{
		ProgramID: 4,
		Accounts:  []codec.AbbreviatedAccountMeta{{Key: 0, Meta: 0x04}},
	}}
	err := f.proposeRaw(t, newKey(t), ixs, ping)
	assert.ErrorIs(t, err, program.ErrInvalidInstruction)
}

func TestPropose_TransactionAccountInUse(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	tx := newKey(t)
	ixs := []codec.AbbreviatedInstruction{{ProgramID: 4, Accounts: []codec.AbbreviatedAccountMeta{{Key: 0, Meta: 1}}}}

	require.NoError(t, f.proposeRaw(t, tx, ixs, ping))
	err := f.proposeRaw(t, tx, ixs, ping)
	assert.ErrorIs(t, err, program.ErrTransactionAccountInUse)
}

// 提案不校验 DID 授权：任何人都可以出资创建记录，但只有授权签名者能执行
func TestPropose_IsUngated(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)

	stranger := newKey(t)
	f.ledger.Airdrop(stranger, fundedLamports)
	tx := newKey(t)
	b := f.builder(t, stranger)
	proposal, err := b.Propose(stranger, tx, []solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(proposal, stranger, tx))
	assert.Equal(t, []types.Pubkey{stranger}, f.record(t, tx).Signers)

	execute, err := b.Execute(tx, stranger, nil, 0)
	require.NoError(t, err)
	err = f.ledger.Submit(execute, stranger)
	assert.ErrorIs(t, err, program.ErrKeyMustBeSigner)
	assert.Equal(t, 0, calls)
	assert.Equal(t, state.Ready, f.record(t, tx).State)
}

func TestIndexSpaceOffset(t *testing.T) {
	require.Equal(t, 2, consts.IndexSpaceOffset)
	require.Equal(t, consts.ProposeFrameworkAccounts-consts.ExecuteFrameworkAccounts, consts.IndexSpaceOffset)

	participants := make([]*host.AccountInfo, 5)
	for i := range participants {
		participants[i] = &host.AccountInfo{Key: newKey(t), Account: &host.Account{}}
	}
	framework := func(n int) []*host.AccountInfo {
		out := make([]*host.AccountInfo, n)
		for i := range out {
			out[i] = &host.AccountInfo{Key: newKey(t), Account: &host.Account{}}
		}
		return out
	}

	propose, err := program.ProposeIndexSpace(append(framework(consts.ProposeFrameworkAccounts), participants...))
	require.NoError(t, err)
	// execute_transaction 的交易账户与接收账户不进入索引空间
	execute, err := program.ExecuteIndexSpace(append(framework(consts.ExecuteFrameworkAccounts+2), participants...), 2)
	require.NoError(t, err)

	require.Equal(t, propose.Len()-consts.IndexSpaceOffset, execute.Len())
	for p := consts.ProposeFrameworkAccounts; p < propose.Len(); p++ {
		e := p - consts.IndexSpaceOffset
		assert.Equal(t, propose.Account(p).Key, execute.Account(e).Key, "propose index %d", p)
	}

	// 存储的参与账户 k>=4 对应 participants[k-4]
	stored := host.Keys(propose.Participants())
	for k := consts.ExecuteFrameworkAccounts; k < execute.Len(); k++ {
		assert.Equal(t, stored[k-consts.ExecuteFrameworkAccounts], execute.Account(k).Key)
	}

	_, err = execute.ResolveIndexes([]uint8{uint8(execute.Len())})
	assert.ErrorIs(t, err, program.ErrIndexOutOfRange)
	_, err = program.ExecuteIndexSpace(framework(5), 2)
	assert.ErrorIs(t, err, program.ErrNotEnoughAccounts)
}

func TestExecute_AuthorityGating(t *testing.T) {
	for _, flags := range []program.ExecuteFlags{0, program.FlagDebug} {
		f := newFixture(t)
		var calls int
		ping := f.registerPing(t, &calls)
		outsider := newKey(t)
		tx := newKey(t)

		// outsider 被列为授权签名者，但不是 DID 的密钥
		proposer := f.builder(t, f.authority)
		proposal, err := proposer.Propose(f.authority, tx, []solanatypes.Instruction{{
			ProgramID: ping.Common(),
			Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
		}}, outsider)
		require.NoError(t, err)
		require.NoError(t, f.ledger.Submit(proposal, f.authority, tx))

		b := f.builder(t, outsider)
		_, err = b.Encode(solanatypes.Instruction{ProgramID: ping.Common()})
		require.NoError(t, err)
		execute, err := b.Execute(tx, outsider, nil, flags)
		require.NoError(t, err)
		err = f.ledger.Submit(execute, outsider)
		assert.ErrorIs(t, err, program.ErrKeyMustBeSigner, "flags=%d", flags)

		// 不在签名者集合中的 DID 密钥
		other := newKey(t)
		f.dids.Register(f.did, did.Document{Keys: []types.Pubkey{f.authority, other}})
		b = f.builder(t, other)
		_, err = b.Encode(solanatypes.Instruction{ProgramID: ping.Common()})
		require.NoError(t, err)
		execute, err = b.Execute(tx, other, nil, flags)
		require.NoError(t, err)
		err = f.ledger.Submit(execute, other)
		require.ErrorIs(t, err, program.ErrKeyCannotChangeTransaction, "flags=%d", flags)
		var keyErr *program.KeyCannotChangeTransactionError
		require.True(t, errors.As(err, &keyErr))
		assert.Equal(t, other, keyErr.Key)

		assert.Equal(t, 0, calls)
		assert.Equal(t, state.Ready, f.record(t, tx).State)
	}
}

func TestExecute_ExtraSignerWithDIDKey(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	delegate := newKey(t)
	f.dids.Register(f.did, did.Document{Keys: []types.Pubkey{f.authority, delegate}})
	tx := newKey(t)

	proposal, err := f.builder(t, f.authority).Propose(f.authority, tx, []solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}}, delegate, f.authority)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(proposal, f.authority, tx))
	assert.Equal(t, []types.Pubkey{f.authority, delegate}, f.record(t, tx).Signers)

	b := f.builder(t, delegate)
	_, err = b.Encode(solanatypes.Instruction{ProgramID: ping.Common()})
	require.NoError(t, err)
	execute, err := b.Execute(tx, delegate, nil, program.FlagDebug)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(execute, delegate))
	assert.Equal(t, 1, calls)
}

func TestExecute_SubCallFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	failing := newKey(t)
	f.ledger.Register(failing, host.ProgramFunc(func(*host.Context, []byte) error {
		return errors.New("boom")
	}))
	tx := newKey(t)
	recipient := newKey(t)

	b := f.builder(t, f.authority)
	proposal, err := b.Propose(f.authority, tx, []solanatypes.Instruction{
		system.Transfer(system.TransferParam{From: f.identity.Address.Common(), To: recipient.Common(), Amount: 0}),
		{ProgramID: failing.Common()},
	})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(proposal, f.authority, tx))
	held := f.ledger.Balance(tx)

	execute, err := b.Execute(tx, recipient, nil, 0)
	require.NoError(t, err)
	err = f.ledger.Submit(execute, f.authority)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, state.Ready, f.record(t, tx).State)
	assert.Equal(t, held, f.ledger.Balance(tx))
	assert.Equal(t, uint64(0), f.ledger.Balance(recipient))
}

func TestExecute_MissingAccount(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	tx := newKey(t)
	ixs := []codec.AbbreviatedInstruction{{ProgramID: 4, Accounts: []codec.AbbreviatedAccountMeta{{Key: 0, Meta: 1}}}}
	require.NoError(t, f.proposeRaw(t, tx, ixs, ping))

	// 执行时换成另一个账户：按位置可以解码，但 ping 不在当前执行账户中
	err := f.executeRaw(t, tx, newKey(t), program.ExecuteTransactionArgs{}, newKey(t))
	require.ErrorIs(t, err, program.ErrMissingAccount)
	var missing *program.MissingAccountError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, ping, missing.Key)
	assert.Equal(t, 0, calls)
}

func TestExecute_AccountChecks(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	tx := newKey(t)
	ixs := []codec.AbbreviatedInstruction{{ProgramID: 4, Accounts: []codec.AbbreviatedAccountMeta{{Key: 0, Meta: 1}}}}
	require.NoError(t, f.proposeRaw(t, tx, ixs, ping))

	t.Run("recipient is transaction account", func(t *testing.T) {
		err := f.executeRaw(t, tx, tx, program.ExecuteTransactionArgs{}, ping)
		assert.ErrorIs(t, err, program.ErrInvalidAccount)
	})

	t.Run("wrong bump", func(t *testing.T) {
		data, err := program.ExecuteTransactionArgs{IdentityBump: f.identity.Bump - 1}.Data()
		require.NoError(t, err)
		metas := f.frameworkMetas(f.authority)
		metas = append(metas,
			solanatypes.AccountMeta{PubKey: tx.Common(), IsWritable: true},
			solanatypes.AccountMeta{PubKey: newKey(t).Common(), IsWritable: true},
			solanatypes.AccountMeta{PubKey: ping.Common()},
		)
		err = f.ledger.Submit(solanatypes.Instruction{ProgramID: consts.CryptidProgram.Common(), Accounts: metas, Data: data}, f.authority)
		assert.ErrorIs(t, err, program.ErrInvalidAccount)
	})

	t.Run("foreign did program", func(t *testing.T) {
		data, err := program.ExecuteTransactionArgs{IdentityBump: f.identity.Bump}.Data()
		require.NoError(t, err)
		metas := f.frameworkMetas(f.authority)
		metas[2] = solanatypes.AccountMeta{PubKey: newKey(t).Common()}
		metas = append(metas,
			solanatypes.AccountMeta{PubKey: tx.Common(), IsWritable: true},
			solanatypes.AccountMeta{PubKey: newKey(t).Common(), IsWritable: true},
		)
		err = f.ledger.Submit(solanatypes.Instruction{ProgramID: consts.CryptidProgram.Common(), Accounts: metas, Data: data}, f.authority)
		var invalid *program.InvalidAccountError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, consts.DidProgram, invalid.Expected)
	})

	t.Run("controller index out of range", func(t *testing.T) {
		err := f.executeRaw(t, tx, newKey(t), program.ExecuteTransactionArgs{ControllerChain: []uint8{9}}, ping)
		assert.ErrorIs(t, err, program.ErrIndexOutOfRange)
	})

	t.Run("unknown flags", func(t *testing.T) {
		err := f.executeRaw(t, tx, newKey(t), program.ExecuteTransactionArgs{Flags: 0x80}, ping)
		assert.ErrorIs(t, err, program.ErrInvalidInstruction)
	})

	assert.Equal(t, 0, calls)
	assert.Equal(t, state.Ready, f.record(t, tx).State)
}

func TestExecute_IdentityMismatch(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	tx := newKey(t)
	ixs := []codec.AbbreviatedInstruction{{ProgramID: 4, Accounts: []codec.AbbreviatedAccountMeta{{Key: 0, Meta: 1}}}}
	require.NoError(t, f.proposeRaw(t, tx, ixs, ping))

	other, err := client.DeriveIdentity(consts.CryptidProgram, consts.DidProgram, f.did, 1)
	require.NoError(t, err)
	original := f.identity
	f.identity = other
	err = f.executeRaw(t, tx, newKey(t), program.ExecuteTransactionArgs{IdentityIndex: 1}, ping)
	f.identity = original

	var invalid *program.InvalidAccountError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, other.Address, invalid.Account)
	assert.Equal(t, original.Address, invalid.Expected)
}

func TestDirectExecute_GenerativeIdentity(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)

	acc, _ := f.ledger.GetAccount(f.identity.Address)
	require.True(t, acc.IsSystemOwnedEmpty())

	ix, err := f.builder(t, f.authority).DirectExecute([]solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}}, program.FlagDebug)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(ix, f.authority))
	assert.Equal(t, 1, calls)

	require.Len(t, f.events, 1)
	assert.Equal(t, program.EventDirectExecuted, f.events[0].Type)
	assert.Equal(t, f.identity.Address, f.events[0].Identity)
}

func TestDirectExecute_SignedTransferFromIdentity(t *testing.T) {
	f := newFixture(t)
	f.ledger.Airdrop(f.identity.Address, 1_000_000)
	dest := newKey(t)

	ix, err := f.builder(t, f.authority).DirectExecute([]solanatypes.Instruction{
		system.Transfer(system.TransferParam{
			From:   f.identity.Address.Common(),
			To:     dest.Common(),
			Amount: 400_000,
		}),
	}, 0)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(ix, f.authority))

	assert.Equal(t, uint64(600_000), f.ledger.Balance(f.identity.Address))
	assert.Equal(t, uint64(400_000), f.ledger.Balance(dest))
}

func TestDirectExecute_IndexOutOfRange(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	f.ledger.Airdrop(f.identity.Address, 1_000_000)

	data, err := program.DirectExecuteArgs{
		Instructions: []codec.AbbreviatedInstruction{{
			ProgramID: 5,
			Accounts:  []codec.AbbreviatedAccountMeta{{Key: 0, Meta: codec.IsSigner.Bits()}},
		}},
		IdentityBump: f.identity.Bump,
	}.Data()
	require.NoError(t, err)
	metas := append(f.frameworkMetas(f.authority), solanatypes.AccountMeta{PubKey: ping.Common()})

	err = f.ledger.Submit(solanatypes.Instruction{ProgramID: consts.CryptidProgram.Common(), Accounts: metas, Data: data},
		f.authority)
	require.ErrorIs(t, err, program.ErrIndexOutOfRange)
	assert.Equal(t, 0, calls)
	assert.Equal(t, uint64(fundedLamports), f.ledger.Balance(f.authority))
	assert.Equal(t, uint64(1_000_000), f.ledger.Balance(f.identity.Address))
	assert.Empty(t, f.events)
}

func TestDirectExecute_AuthorityGating(t *testing.T) {
	for _, flags := range []program.ExecuteFlags{0, program.FlagDebug} {
		f := newFixture(t)
		var calls int
		ping := f.registerPing(t, &calls)
		outsider := newKey(t)

		ix, err := f.builder(t, outsider).DirectExecute([]solanatypes.Instruction{{
			ProgramID: ping.Common(),
			Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
		}}, flags)
		require.NoError(t, err)
		err = f.ledger.Submit(ix, outsider)
		assert.ErrorIs(t, err, program.ErrKeyMustBeSigner, "flags=%d", flags)
		assert.Equal(t, 0, calls)
	}
}

func TestDirectExecute_ControllerChain(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)

	controllerKey := newKey(t)
	controllerDID := newKey(t)
	f.dids.Register(f.did, did.Document{Keys: []types.Pubkey{f.authority}, Controllers: []types.Pubkey{controllerDID}})
	f.dids.Register(controllerDID, did.Document{Keys: []types.Pubkey{controllerKey}})

	instructions := []solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}}

	// 没有 controller 链时 controllerKey 不是 DID 的直接密钥
	ix, err := f.builder(t, controllerKey).DirectExecute(instructions, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ledger.Submit(ix, controllerKey), program.ErrKeyMustBeSigner)

	b := f.builder(t, controllerKey)
	require.NoError(t, b.WithControllers(controllerDID))
	ix, err = b.DirectExecute(instructions, 0)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(ix, controllerKey))
	assert.Equal(t, 1, calls)
}

func TestDirectExecute_WrongBump(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)

	forged := f.identity
	forged.Bump--
	b, err := client.NewBuilder(consts.CryptidProgram, consts.DidProgram, forged, f.authority)
	require.NoError(t, err)
	ix, err := b.DirectExecute([]solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}}, 0)
	require.NoError(t, err)
	err = f.ledger.Submit(ix, f.authority)
	assert.ErrorIs(t, err, program.ErrInvalidAccount)
	assert.Equal(t, 0, calls)
}

func TestDirectExecute_ForeignOwnedIdentity(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	f.ledger.SetAccount(f.identity.Address, host.Account{Owner: ping, Lamports: 1, Data: []byte{1}})

	ix, err := f.builder(t, f.authority).DirectExecute([]solanatypes.Instruction{{ProgramID: ping.Common()}}, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ledger.Submit(ix, f.authority), program.ErrInvalidAccount)
}

func TestDirectExecute_PersistedIndexMismatch(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)

	data, err := (&state.IdentityState{Index: 3}).Marshal()
	require.NoError(t, err)
	f.ledger.SetAccount(f.identity.Address, host.Account{
		Owner:    consts.CryptidProgram,
		Lamports: f.ledger.Rent().MinimumBalance(len(data)),
		Data:     data,
	})

	ix, err := f.builder(t, f.authority).DirectExecute([]solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}}, 0)
	require.NoError(t, err)
	err = f.ledger.Submit(ix, f.authority)
	assert.ErrorIs(t, err, program.ErrInvalidAccount)
	var invalid *program.InvalidAccountError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, f.identity.Address, invalid.Account)
	assert.Equal(t, 0, calls)

	// index 一致时正常执行
	data, err = (&state.IdentityState{Index: 0}).Marshal()
	require.NoError(t, err)
	f.ledger.SetAccount(f.identity.Address, host.Account{
		Owner:    consts.CryptidProgram,
		Lamports: f.ledger.Rent().MinimumBalance(len(data)),
		Data:     data,
	})
	require.NoError(t, f.ledger.Submit(ix, f.authority))
	assert.Equal(t, 1, calls)
}

// approver 以 PDA ["approver"] 的身份对交易发起 approve_execution
func registerApprover(t *testing.T, f *fixture) (types.Pubkey, types.Pubkey) {
	id := newKey(t)
	pda, bump, err := common.FindProgramAddress([][]byte{[]byte("approver")}, id.Common())
	require.NoError(t, err)
	authority := types.FromCommon(pda)

	f.ledger.Register(id, host.ProgramFunc(func(ctx *host.Context, _ []byte) error {
		tx, identity := ctx.Accounts[2].Key, ctx.Accounts[3].Key
		ix, err := client.Approve(consts.CryptidProgram, authority, tx, identity)
		if err != nil {
			return err
		}
		return ctx.InvokeSigned(ix, ctx.Accounts, [][][]byte{{[]byte("approver"), {bump}}})
	}))
	return id, authority
}

func approve(f *fixture, approver, authority, tx types.Pubkey) error {
	return f.ledger.Submit(solanatypes.Instruction{
		ProgramID: approver.Common(),
		Accounts: []solanatypes.AccountMeta{
			{PubKey: consts.CryptidProgram.Common()},
			{PubKey: authority.Common()},
			{PubKey: tx.Common(), IsWritable: true},
			{PubKey: f.identity.Address.Common()},
		},
	})
}

func TestMiddlewareApproval(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	approver, middleware := registerApprover(t, f)
	tx := newKey(t)
	recipient := newKey(t)

	b := f.builder(t, f.authority)
	proposal, err := b.Propose(f.authority, tx, []solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(proposal, f.authority, tx))

	require.NoError(t, approve(f, approver, middleware, tx))
	record := f.record(t, tx)
	require.NotNil(t, record.ApprovedMiddleware)
	assert.Equal(t, middleware, *record.ApprovedMiddleware)

	// 已审批时必须声明同一个 middleware
	execute, err := b.Execute(tx, recipient, nil, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ledger.Submit(execute, f.authority), program.ErrIncorrectMiddleware)

	wrong := newKey(t)
	execute, err = b.Execute(tx, recipient, &wrong, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ledger.Submit(execute, f.authority), program.ErrIncorrectMiddleware)

	execute, err = b.Execute(tx, recipient, &middleware, 0)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(execute, f.authority))
	assert.Equal(t, 1, calls)

	// 已执行的交易不能再审批
	assert.ErrorIs(t, approve(f, approver, middleware, tx), program.ErrInvalidTransactionState)

	kinds := make([]program.EventType, 0, len(f.events))
	for _, e := range f.events {
		kinds = append(kinds, e.Type)
	}
	assert.Equal(t, []program.EventType{program.EventProposed, program.EventApproved, program.EventExecuted}, kinds)
}

func TestApprove_RequiresSigner(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	tx := newKey(t)
	ixs := []codec.AbbreviatedInstruction{{ProgramID: 4}}
	require.NoError(t, f.proposeRaw(t, tx, ixs, ping))

	ix, err := client.Approve(consts.CryptidProgram, newKey(t), tx, f.identity.Address)
	require.NoError(t, err)
	ix.Accounts[0].IsSigner = false
	assert.ErrorIs(t, f.ledger.Submit(ix), program.ErrKeyMustBeSigner)
	assert.Nil(t, f.record(t, tx).ApprovedMiddleware)
}

func TestApprove_CannotReplaceApproval(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	approver, middleware := registerApprover(t, f)
	tx := newKey(t)
	require.NoError(t, f.proposeRaw(t, tx, []codec.AbbreviatedInstruction{{ProgramID: 4}}, ping))
	require.NoError(t, approve(f, approver, middleware, tx))

	stranger := newKey(t)
	ix, err := client.Approve(consts.CryptidProgram, stranger, tx, f.identity.Address)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ledger.Submit(ix, stranger), program.ErrIncorrectMiddleware)

	record := f.record(t, tx)
	require.NotNil(t, record.ApprovedMiddleware)
	assert.Equal(t, middleware, *record.ApprovedMiddleware)

	// 同一 middleware 重复审批不报错
	require.NoError(t, approve(f, approver, middleware, tx))
	assert.Equal(t, middleware, *f.record(t, tx).ApprovedMiddleware)
}

func TestApprove_IdentityChecks(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	_, middleware := registerApprover(t, f)

	identityState := &state.IdentityState{Middleware: &middleware}
	data, err := identityState.Marshal()
	require.NoError(t, err)
	f.ledger.SetAccount(f.identity.Address, host.Account{
		Owner:    consts.CryptidProgram,
		Lamports: f.ledger.Rent().MinimumBalance(len(data)),
		Data:     data,
	})

	tx := newKey(t)
	require.NoError(t, f.proposeRaw(t, tx, []codec.AbbreviatedInstruction{{ProgramID: 4}}, ping))

	t.Run("not the required middleware", func(t *testing.T) {
		stranger := newKey(t)
		ix, err := client.Approve(consts.CryptidProgram, stranger, tx, f.identity.Address)
		require.NoError(t, err)
		assert.ErrorIs(t, f.ledger.Submit(ix, stranger), program.ErrIncorrectMiddleware)
		assert.Nil(t, f.record(t, tx).ApprovedMiddleware)
	})

	t.Run("identity not in record", func(t *testing.T) {
		stranger := newKey(t)
		ix, err := client.Approve(consts.CryptidProgram, stranger, tx, newKey(t))
		require.NoError(t, err)
		assert.ErrorIs(t, f.ledger.Submit(ix, stranger), program.ErrInvalidAccount)
		assert.Nil(t, f.record(t, tx).ApprovedMiddleware)
	})
}

func TestPersistedIdentity_RequiredMiddleware(t *testing.T) {
	f := newFixture(t)
	var calls int
	ping := f.registerPing(t, &calls)
	approver, middleware := registerApprover(t, f)

	identityState := &state.IdentityState{Middleware: &middleware}
	data, err := identityState.Marshal()
	require.NoError(t, err)
	f.ledger.SetAccount(f.identity.Address, host.Account{
		Owner:    consts.CryptidProgram,
		Lamports: f.ledger.Rent().MinimumBalance(len(data)),
		Data:     data,
	})

	instructions := []solanatypes.Instruction{{
		ProgramID: ping.Common(),
		Accounts:  []solanatypes.AccountMeta{{PubKey: f.identity.Address.Common(), IsSigner: true}},
	}}

	// 直接执行会绕过审批
	direct, err := f.builder(t, f.authority).DirectExecute(instructions, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ledger.Submit(direct, f.authority), program.ErrIncorrectMiddleware)

	tx := newKey(t)
	b := f.builder(t, f.authority)
	proposal, err := b.Propose(f.authority, tx, instructions)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(proposal, f.authority, tx))

	execute, err := b.Execute(tx, f.authority, &middleware, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ledger.Submit(execute, f.authority), program.ErrIncorrectMiddleware)
	assert.Equal(t, 0, calls)

	require.NoError(t, approve(f, approver, middleware, tx))
	require.NoError(t, f.ledger.Submit(execute, f.authority))
	assert.Equal(t, 1, calls)
}

func TestFundConservation(t *testing.T) {
	f := newFixture(t)
	f.ledger.Airdrop(f.identity.Address, 5_000_000)
	dest := newKey(t)
	recipient := newKey(t)
	tx := newKey(t)

	b := f.builder(t, f.authority)
	proposal, err := b.Propose(f.authority, tx, []solanatypes.Instruction{
		system.Transfer(system.TransferParam{From: f.identity.Address.Common(), To: dest.Common(), Amount: 2_000_000}),
		system.Transfer(system.TransferParam{From: f.identity.Address.Common(), To: dest.Common(), Amount: 1_000_000}),
	})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(proposal, f.authority, tx))

	held := f.ledger.Balance(tx)
	require.Greater(t, held, uint64(0))
	record := f.record(t, tx)
	acc, _ := f.ledger.GetAccount(tx)
	assert.Equal(t, record.Size(), len(acc.Data))
	assert.Equal(t, fundedLamports-held, f.ledger.Balance(f.authority))

	execute, err := b.Execute(tx, recipient, nil, 0)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(execute, f.authority))

	assert.Equal(t, uint64(0), f.ledger.Balance(tx))
	assert.Equal(t, held, f.ledger.Balance(recipient))
	assert.Equal(t, uint64(3_000_000), f.ledger.Balance(dest))
	assert.Equal(t, uint64(2_000_000), f.ledger.Balance(f.identity.Address))
}

func TestProcess_UnknownInstruction(t *testing.T) {
	f := newFixture(t)
	err := f.ledger.Submit(solanatypes.Instruction{
		ProgramID: consts.CryptidProgram.Common(),
		Data:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
	})
	assert.ErrorIs(t, err, program.ErrInvalidInstruction)

	err = f.ledger.Submit(solanatypes.Instruction{ProgramID: consts.CryptidProgram.Common(), Data: []byte{1}})
	assert.ErrorIs(t, err, program.ErrInvalidInstruction)
}

func TestCodeOf(t *testing.T) {
	code, ok := program.CodeOf(&program.MissingAccountError{})
	require.True(t, ok)
	assert.Equal(t, program.CodeMissingAccount, code)

	code, ok = program.CodeOf(program.ErrKeyMustBeSigner)
	require.True(t, ok)
	assert.Equal(t, program.ErrorCode(6000), code)

	_, ok = program.CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestExecuteFlagsFromBits(t *testing.T) {
	f, err := program.ExecuteFlagsFromBits(1)
	require.NoError(t, err)
	assert.True(t, f.Debug())

	f, err = program.ExecuteFlagsFromBits(0)
	require.NoError(t, err)
	assert.False(t, f.Debug())

	_, err = program.ExecuteFlagsFromBits(2)
	assert.ErrorIs(t, err, program.ErrInvalidInstruction)
}

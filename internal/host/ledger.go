package host

import (
	"bytes"
	"fmt"
	"sync"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"

	"github.com/blocto/solana-go-sdk/common"
	solanatypes "github.com/blocto/solana-go-sdk/types"
)

// MaxInvokeDepth 顶层指令算第一层，与主网一致
const MaxInvokeDepth = 5

// Program 链上程序入口
type Program interface {
	Process(ctx *Context, data []byte) error
}

// ProgramFunc 以函数形式实现 Program
type ProgramFunc func(ctx *Context, data []byte) error

func (f ProgramFunc) Process(ctx *Context, data []byte) error {
	return f(ctx, data)
}

// Ledger 内存账本：账户存储、程序注册表、整笔指令的原子提交与回滚。
// Submit 之间串行执行（对应宿主对可写账户的独占保证）。
type Ledger struct {
	mu       sync.Mutex
	accounts map[types.Pubkey]*Account
	programs map[types.Pubkey]Program
	rent     Rent
}

func NewLedger() *Ledger {
	l := &Ledger{
		accounts: make(map[types.Pubkey]*Account),
		programs: make(map[types.Pubkey]Program),
		rent:     DefaultRent(),
	}
	l.Register(consts.SystemProgram, ProgramFunc(processSystem))
	return l
}

// Register 注册程序，并写入一个可执行账户
func (l *Ledger) Register(programID types.Pubkey, p Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[programID] = p
	l.accounts[programID] = &Account{Owner: consts.SystemProgram, Executable: true}
}

// SetAccount 直接写入账户（仅用于初始化状态）
func (l *Ledger) SetAccount(key types.Pubkey, acc Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[key] = acc.clone()
}

// Airdrop 给账户充值（账户不存在时按系统账户创建）
func (l *Ledger) Airdrop(key types.Pubkey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadOrCreate(key).Lamports += lamports
}

// GetAccount 返回账户副本
func (l *Ledger) GetAccount(key types.Pubkey) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[key]
	if !ok {
		return Account{Owner: consts.SystemProgram}, false
	}
	return *acc.clone(), true
}

func (l *Ledger) Balance(key types.Pubkey) uint64 {
	acc, _ := l.GetAccount(key)
	return acc.Lamports
}

func (l *Ledger) Rent() Rent {
	return l.rent
}

func (l *Ledger) loadOrCreate(key types.Pubkey) *Account {
	acc, ok := l.accounts[key]
	if !ok {
		acc = &Account{Owner: consts.SystemProgram}
		l.accounts[key] = acc
	}
	return acc
}

// Submit 原子执行一条顶层指令：任何一步失败，所有账户恢复到执行前状态。
// signers 为该笔交易提供了签名的账户。
func (l *Ledger) Submit(ix solanatypes.Instruction, signers ...types.Pubkey) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	signed := make(map[types.Pubkey]bool, len(signers))
	for _, s := range signers {
		signed[s] = true
	}

	snapshot := make(map[types.Pubkey]*Account, len(l.accounts))
	var before uint64
	for k, acc := range l.accounts {
		snapshot[k] = acc.clone()
		before += acc.Lamports
	}
	defer func() {
		if err == nil {
			var after uint64
			for _, acc := range l.accounts {
				after += acc.Lamports
			}
			if after != before {
				err = fmt.Errorf("%w: before=%d, after=%d", ErrUnbalanced, before, after)
			}
		}
		if err != nil {
			l.accounts = snapshot
		}
	}()

	infos := make([]*AccountInfo, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		key := types.FromCommon(meta.PubKey)
		if meta.IsSigner && !signed[key] {
			return fmt.Errorf("%w: %s", ErrMissingSignature, key)
		}
		infos = append(infos, &AccountInfo{
			Key:        key,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Account:    l.loadOrCreate(key),
		})
	}
	return l.process(types.FromCommon(ix.ProgramID), infos, ix.Data, 1)
}

func (l *Ledger) process(programID types.Pubkey, infos []*AccountInfo, data []byte, depth int) error {
	if depth > MaxInvokeDepth {
		return fmt.Errorf("%w: depth=%d", ErrCallDepth, depth)
	}
	program, ok := l.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}

	pre := snapshotInfos(infos)
	ctx := &Context{
		ProgramID: programID,
		Accounts:  infos,
		ledger:    l,
		depth:     depth,
		pre:       pre,
	}
	if err := program.Process(ctx, data); err != nil {
		return err
	}
	return verifyModifications(programID, infos, pre)
}

type preState struct {
	state    *Account
	writable bool
}

func snapshotInfos(infos []*AccountInfo) map[*Account]*preState {
	pre := make(map[*Account]*preState, len(infos))
	for _, info := range infos {
		if p, ok := pre[info.Account]; ok {
			p.writable = p.writable || info.IsWritable
			continue
		}
		pre[info.Account] = &preState{state: info.Account.clone(), writable: info.IsWritable}
	}
	return pre
}

// verifyModifications 只读账户不得被修改；数据、所有者变更与余额减少只能由账户所有者完成。
// pre 在每次子调用返回后刷新，因此子调用内的合法修改不会算到调用方头上。
func verifyModifications(programID types.Pubkey, infos []*AccountInfo, pre map[*Account]*preState) error {
	for _, info := range infos {
		p := pre[info.Account]
		if p == nil || p.state.equal(info.Account) {
			continue
		}
		if !p.writable {
			return fmt.Errorf("%w: %s", ErrReadonlyWrite, info.Key)
		}
		if p.state.Owner == programID {
			continue
		}
		// 非所有者只允许增加余额
		post := info.Account
		if !bytes.Equal(p.state.Data, post.Data) || post.Owner != p.state.Owner || post.Lamports < p.state.Lamports {
			return fmt.Errorf("%w: account=%s, program=%s", ErrExternalModification, info.Key, programID)
		}
	}
	return nil
}

// Context 程序执行上下文
type Context struct {
	ProgramID types.Pubkey
	Accounts  []*AccountInfo
	ledger    *Ledger
	depth     int
	pre       map[*Account]*preState
}

func (c *Context) Rent() Rent {
	return c.ledger.rent
}

// Invoke 普通子调用：不附加任何派生签名
func (c *Context) Invoke(ix solanatypes.Instruction, infos []*AccountInfo) error {
	return c.InvokeSigned(ix, infos, nil)
}

// InvokeSigned 子调用，signerSeeds 中每组种子派生出的地址（基于当前程序）视为已签名
func (c *Context) InvokeSigned(ix solanatypes.Instruction, infos []*AccountInfo, signerSeeds [][][]byte) error {
	pdas := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := common.CreateProgramAddress(seeds, c.ProgramID.Common())
		if err != nil {
			return fmt.Errorf("invoke signed: %w", err)
		}
		pdas[types.FromCommon(addr)] = true
	}

	calleeInfos := make([]*AccountInfo, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		key := types.FromCommon(meta.PubKey)
		caller, ok := FindAccount(infos, key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, key)
		}
		if meta.IsSigner && !caller.IsSigner && !pdas[key] {
			return fmt.Errorf("%w: %s", ErrMissingSignature, key)
		}
		if meta.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s", ErrPrivilegeEscalation, key)
		}
		calleeInfos = append(calleeInfos, &AccountInfo{
			Key:        key,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Account:    caller.Account,
		})
	}

	programID := types.FromCommon(ix.ProgramID)
	logger.Debugf("[Host:Invoke] caller=%s, program=%s, accounts=%d, signed=%d, depth=%d",
		c.ProgramID, programID, len(calleeInfos), len(pdas), c.depth+1)
	if err := c.ledger.process(programID, calleeInfos, ix.Data, c.depth+1); err != nil {
		return err
	}

	// 子调用已通过校验，以其结果作为调用方新的基准
	for _, info := range calleeInfos {
		if p, ok := c.pre[info.Account]; ok {
			p.state = info.Account.clone()
		}
	}
	return nil
}

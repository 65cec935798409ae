package program

import (
	"fmt"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"

	"github.com/blocto/solana-go-sdk/program/system"
)

// proposeTransaction 持久化一笔待执行交易，不校验提案者对 DID 的授权（执行时才校验）。
//
// 账户布局见 ProposeIndexSpace；交易账户由 authority 出资，经 System Program 按精确大小创建。
func (p *Program) proposeTransaction(ctx *host.Context, body []byte) error {
	var args ProposeTransactionArgs
	if err := decodeArgs(body, &args); err != nil {
		logger.Errorf("[Cryptid:Propose] 参数解析失败: %v", err)
		return err
	}

	// 1. 校验账户结构
	space, err := ProposeIndexSpace(ctx.Accounts)
	if err != nil {
		logger.Errorf("[Cryptid:Propose] 指令账户长度不足: got=%d, expect>=%d",
			len(ctx.Accounts), consts.ProposeFrameworkAccounts)
		return err
	}
	identity := space.Account(0)
	didAccount := space.Account(1)
	authority := space.Account(3)
	txAccount := space.Account(4)
	systemProgram := space.Account(5)

	if err := p.checkDIDProgram(space.Account(2)); err != nil {
		return err
	}
	if systemProgram.Key != consts.SystemProgram {
		logger.Errorf("[Cryptid:Propose] System Program 不匹配: got=%s", systemProgram.Key)
		return &InvalidAccountError{Account: systemProgram.Key, Expected: consts.SystemProgram}
	}

	// 2. authority 出资，必须签名且可写
	if !authority.IsSigner {
		logger.Errorf("[Cryptid:Propose] authority 未签名: authority=%s", authority.Key)
		return ErrKeyMustBeSigner
	}
	if !authority.IsWritable {
		logger.Errorf("[Cryptid:Propose] authority 不可写: authority=%s", authority.Key)
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, authority.Key)
	}

	// 3. 交易账户必须是全新的签名账户
	if !txAccount.IsWritable {
		logger.Errorf("[Cryptid:Propose] 交易账户不可写: tx=%s", txAccount.Key)
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, txAccount.Key)
	}
	if !txAccount.IsSigner || !txAccount.IsSystemOwnedEmpty() {
		logger.Errorf("[Cryptid:Propose] 交易账户已被占用: tx=%s, signer=%v, owner=%s, lamports=%d, data=%d",
			txAccount.Key, txAccount.IsSigner, txAccount.Owner, txAccount.Lamports, len(txAccount.Data))
		return fmt.Errorf("%w: %s", ErrTransactionAccountInUse, txAccount.Key)
	}

	// 4. 校验子指令索引：执行时的索引空间为 4 个框架账户 + 参与账户
	participants := space.Participants()
	if int(args.AccountCount) != len(participants) {
		logger.Warnf("[Cryptid:Propose] 声明的账户数与实际不符: declared=%d, actual=%d, tx=%s",
			args.AccountCount, len(participants), txAccount.Key)
	}
	limit := consts.ExecuteFrameworkAccounts + len(participants)
	for i := range args.Instructions {
		ix := &args.Instructions[i]
		if err := checkIndexes("execute", ix.Indexes(), limit); err != nil {
			logger.Errorf("[Cryptid:Propose] 子指令索引越界: %v, instruction=%d, tx=%s", err, i, txAccount.Key)
			return err
		}
		for _, meta := range ix.Accounts {
			if _, err := meta.Props(); err != nil {
				logger.Errorf("[Cryptid:Propose] 子指令权限位非法: %v, instruction=%d, tx=%s", err, i, txAccount.Key)
				return fmt.Errorf("%w: instruction %d: %v", ErrInvalidInstruction, i, err)
			}
		}
	}

	// 5. 构造交易记录
	record := &state.TransactionRecord{
		DID:             didAccount.Key,
		IdentityAccount: identity.Key,
		State:           state.Ready,
		Accounts:        host.Keys(participants),
		Instructions:    args.Instructions,
		Signers:         proposalSigners(authority.Key, args.ExtraSigners),
	}

	// 6. 按精确大小创建交易账户，归本程序所有
	size := record.Size()
	lamports := ctx.Rent().MinimumBalance(size)
	create := system.CreateAccount(system.CreateAccountParam{
		From:     authority.Key.Common(),
		New:      txAccount.Key.Common(),
		Owner:    ctx.ProgramID.Common(),
		Lamports: lamports,
		Space:    uint64(size),
	})
	if err := ctx.Invoke(create, ctx.Accounts); err != nil {
		logger.Errorf("[Cryptid:Propose] 创建交易账户失败: %v, tx=%s, size=%d, lamports=%d",
			err, txAccount.Key, size, lamports)
		return err
	}

	// 7. 写入记录
	if err := record.WriteTo(txAccount.Data); err != nil {
		logger.Errorf("[Cryptid:Propose] 写入交易记录失败: %v, tx=%s", err, txAccount.Key)
		return err
	}

	p.emit(&Event{
		Type:         EventProposed,
		DID:          record.DID,
		Identity:     record.IdentityAccount,
		Transaction:  txAccount.Key,
		Signer:       authority.Key,
		Lamports:     lamports,
		Instructions: uint32(len(record.Instructions)),
	})
	return nil
}

// proposalSigners 提案者固定为第一个签名者，其余去重后按顺序追加
func proposalSigners(authority types.Pubkey, extra []types.Pubkey) []types.Pubkey {
	signers := make([]types.Pubkey, 0, 1+len(extra))
	signers = append(signers, authority)
	seen := map[types.Pubkey]bool{authority: true}
	for _, s := range extra {
		if seen[s] {
			continue
		}
		seen[s] = true
		signers = append(signers, s)
	}
	return signers
}

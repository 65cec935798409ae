package program

import (
	"fmt"

	"cryptid-sol/internal/host"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"
)

// approveExecution 由 middleware（通常以其 PDA 签名的子调用）登记审批。
// 审批策略本身由 middleware 决定，这里只记录其身份。
// identity 指定了 middleware 时只接受该 middleware；记录已被审批后不能换成其他 middleware。
//
// 账户布局：
//
//	#0 - middleware（signer）
//	#1 - 交易账户（writable）
//	#2 - identity 账户
func (p *Program) approveExecution(ctx *host.Context, _ []byte) error {
	// 1. 校验账户结构
	if len(ctx.Accounts) < 3 {
		logger.Errorf("[Cryptid:Approve] 指令账户长度不足: got=%d, expect>=3", len(ctx.Accounts))
		return ErrNotEnoughAccounts
	}
	middleware, txInfo, identityInfo := ctx.Accounts[0], ctx.Accounts[1], ctx.Accounts[2]

	if !middleware.IsSigner {
		logger.Errorf("[Cryptid:Approve] middleware 未签名: middleware=%s, tx=%s", middleware.Key, txInfo.Key)
		return ErrKeyMustBeSigner
	}
	if !txInfo.IsWritable {
		logger.Errorf("[Cryptid:Approve] 交易账户不可写: tx=%s", txInfo.Key)
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, txInfo.Key)
	}
	if txInfo.Owner != ctx.ProgramID {
		logger.Errorf("[Cryptid:Approve] 交易账户所有者异常: tx=%s, owner=%s", txInfo.Key, txInfo.Owner)
		return &InvalidAccountError{Account: txInfo.Key}
	}

	// 2. 读取记录，只有 Ready 的交易可以审批
	record, err := state.UnmarshalTransactionRecord(txInfo.Data)
	if err != nil {
		logger.Errorf("[Cryptid:Approve] 交易记录解析失败: %v, tx=%s", err, txInfo.Key)
		return &InvalidAccountError{Account: txInfo.Key}
	}
	if record.State != state.Ready {
		logger.Errorf("[Cryptid:Approve] 交易状态异常: expected=%s, found=%s, tx=%s", state.Ready, record.State, txInfo.Key)
		return &InvalidTransactionStateError{Expected: state.Ready, Found: record.State}
	}

	// 3. 校验审批者
	if identityInfo.Key != record.IdentityAccount {
		logger.Errorf("[Cryptid:Approve] identity 与交易记录不一致: identity=%s, expected=%s, tx=%s",
			identityInfo.Key, record.IdentityAccount, txInfo.Key)
		return &InvalidAccountError{Account: identityInfo.Key, Expected: record.IdentityAccount}
	}
	if required := requiredMiddleware(ctx.ProgramID, identityInfo); required != nil && *required != middleware.Key {
		logger.Errorf("[Cryptid:Approve] middleware 与 identity 要求不一致: middleware=%s, required=%s, tx=%s",
			middleware.Key, *required, txInfo.Key)
		return fmt.Errorf("%w: got=%s, want=%s", ErrIncorrectMiddleware, middleware.Key, *required)
	}
	if prev := record.ApprovedMiddleware; prev != nil && *prev != middleware.Key {
		logger.Errorf("[Cryptid:Approve] 交易已被其他 middleware 审批: middleware=%s, approved=%s, tx=%s",
			middleware.Key, *prev, txInfo.Key)
		return fmt.Errorf("%w: got=%s, approved=%s", ErrIncorrectMiddleware, middleware.Key, *prev)
	}

	// 4. 登记审批
	approved := middleware.Key
	record.ApprovedMiddleware = &approved
	if err := record.WriteTo(txInfo.Data); err != nil {
		logger.Errorf("[Cryptid:Approve] 写入交易记录失败: %v, tx=%s", err, txInfo.Key)
		return err
	}

	p.emit(&Event{
		Type:        EventApproved,
		DID:         record.DID,
		Identity:    record.IdentityAccount,
		Transaction: txInfo.Key,
		Middleware:  approved,
	})
	return nil
}

// requiredMiddleware 已上链 identity 指定的 middleware；未上链或无法解析时为 nil。
// 派生校验在 execute 时进行，这里只读取状态。
func requiredMiddleware(programID types.Pubkey, info *host.AccountInfo) *types.Pubkey {
	if info.Owner != programID {
		return nil
	}
	s, err := state.UnmarshalIdentityState(info.Data)
	if err != nil {
		return nil
	}
	return s.Middleware
}

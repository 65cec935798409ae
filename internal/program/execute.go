package program

import (
	"fmt"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"
)

// executeTransaction 执行一笔已提案的交易，成功后标记为 Executed 并把交易账户余额全部转给接收方。
//
// 账户布局：
//
//	#0 - identity 账户
//	#1 - DID 账户
//	#2 - DID 程序
//	#3 - 签名者
//	#4 - 交易账户（writable，不进入索引空间）
//	#5 - 资金接收账户（writable，不进入索引空间）
//	#6.. - 参与账户（执行索引空间的 #4..）
func (p *Program) executeTransaction(ctx *host.Context, body []byte) error {
	var args ExecuteTransactionArgs
	if err := decodeArgs(body, &args); err != nil {
		logger.Errorf("[Cryptid:Execute] 参数解析失败: %v", err)
		return err
	}
	flags, err := ExecuteFlagsFromBits(args.Flags)
	if err != nil {
		logger.Errorf("[Cryptid:Execute] 标志位非法: %v", err)
		return err
	}
	trace := tracer{enabled: flags.Debug(), op: "Execute"}

	// 1. 校验账户结构
	space, err := ExecuteIndexSpace(ctx.Accounts, 2)
	if err != nil {
		logger.Errorf("[Cryptid:Execute] 指令账户长度不足: got=%d, expect>=%d",
			len(ctx.Accounts), consts.ExecuteFrameworkAccounts+2)
		return err
	}
	identityInfo := ctx.Accounts[0]
	didInfo := ctx.Accounts[1]
	signer := ctx.Accounts[3]
	txInfo := ctx.Accounts[4]
	recipient := ctx.Accounts[5]

	if err := p.checkDIDProgram(ctx.Accounts[2]); err != nil {
		return err
	}
	if !txInfo.IsWritable {
		logger.Errorf("[Cryptid:Execute] 交易账户不可写: tx=%s", txInfo.Key)
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, txInfo.Key)
	}
	if !recipient.IsWritable {
		logger.Errorf("[Cryptid:Execute] 接收账户不可写: recipient=%s", recipient.Key)
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, recipient.Key)
	}
	if recipient.Key == txInfo.Key {
		logger.Errorf("[Cryptid:Execute] 接收账户不能是交易账户本身: tx=%s", txInfo.Key)
		return &InvalidAccountError{Account: recipient.Key}
	}

	// 2. 读取交易记录
	if txInfo.Owner != ctx.ProgramID {
		logger.Errorf("[Cryptid:Execute] 交易账户所有者异常: tx=%s, owner=%s", txInfo.Key, txInfo.Owner)
		return &InvalidAccountError{Account: txInfo.Key}
	}
	record, err := state.UnmarshalTransactionRecord(txInfo.Data)
	if err != nil {
		logger.Errorf("[Cryptid:Execute] 交易记录解析失败: %v, tx=%s", err, txInfo.Key)
		return &InvalidAccountError{Account: txInfo.Key}
	}

	// 3. identity 与 DID 必须与提案时一致，identity 地址须可重新派生
	if identityInfo.Key != record.IdentityAccount {
		logger.Errorf("[Cryptid:Execute] identity 与交易记录不符: got=%s, expected=%s, tx=%s",
			identityInfo.Key, record.IdentityAccount, txInfo.Key)
		return &InvalidAccountError{Account: identityInfo.Key, Expected: record.IdentityAccount}
	}
	if didInfo.Key != record.DID {
		logger.Errorf("[Cryptid:Execute] DID 与交易记录不符: got=%s, expected=%s, tx=%s",
			didInfo.Key, record.DID, txInfo.Key)
		return &InvalidAccountError{Account: didInfo.Key, Expected: record.DID}
	}
	identity, err := validateIdentity(ctx.ProgramID, identityInfo, p.didProgram, didInfo.Key, args.IdentityIndex, args.IdentityBump)
	if err != nil {
		return err
	}

	// 4. 状态必须为 Ready
	if record.State != state.Ready {
		logger.Errorf("[Cryptid:Execute] 交易状态异常: expected=%s, found=%s, tx=%s", state.Ready, record.State, txInfo.Key)
		return &InvalidTransactionStateError{Expected: state.Ready, Found: record.State}
	}

	// 5. 签名者必须在授权签名者集合中
	if !record.HasSigner(signer.Key) {
		logger.Errorf("[Cryptid:Execute] 签名者无权执行该交易: signer=%s, tx=%s", signer.Key, txInfo.Key)
		return &KeyCannotChangeTransactionError{Key: signer.Key}
	}

	// 6. middleware 审批
	if err := checkMiddleware(identity, record, args.Middleware); err != nil {
		logger.Errorf("[Cryptid:Execute] middleware 校验失败: %v, identity=%s, tx=%s", err, identity.Address, txInfo.Key)
		return err
	}

	// 7. 校验 DID 授权
	controllers, err := space.ResolveIndexes(args.ControllerChain)
	if err != nil {
		logger.Errorf("[Cryptid:Execute] controller chain 索引越界: %v, tx=%s", err, txInfo.Key)
		return err
	}
	if err := p.verifyAuthority(didInfo, nil, signer, controllers); err != nil {
		return err
	}
	trace.printf("授权校验通过: did=%s, signer=%s, controllers=%d", didInfo.Key, signer.Key, len(controllers))

	// 8. 以提案时的参与账户解码，再按 key 映射到当前账户
	keys := make([]types.Pubkey, 0, consts.ExecuteFrameworkAccounts+len(record.Accounts))
	keys = append(keys, space.Keys()[:consts.ExecuteFrameworkAccounts]...)
	keys = append(keys, record.Accounts...)
	trace.printf("解码索引空间: framework=%d, participants=%d, supplied=%d",
		consts.ExecuteFrameworkAccounts, len(record.Accounts), len(space.Participants()))

	if err := invokeInstructions(ctx, identity, record.Instructions, keys, space, trace); err != nil {
		return err
	}

	// 9. 标记 Executed 并回收交易账户余额
	record.State = state.Executed
	if err := record.WriteTo(txInfo.Data); err != nil {
		logger.Errorf("[Cryptid:Execute] 写入交易记录失败: %v, tx=%s", err, txInfo.Key)
		return err
	}
	swept := txInfo.Lamports
	recipient.Lamports += swept
	txInfo.Lamports = 0
	trace.printf("回收余额: tx=%s, recipient=%s, lamports=%d", txInfo.Key, recipient.Key, swept)

	event := &Event{
		Type:         EventExecuted,
		DID:          record.DID,
		Identity:     record.IdentityAccount,
		Transaction:  txInfo.Key,
		Signer:       signer.Key,
		Recipient:    recipient.Key,
		Lamports:     swept,
		Instructions: uint32(len(record.Instructions)),
	}
	if record.ApprovedMiddleware != nil {
		event.Middleware = *record.ApprovedMiddleware
	}
	p.emit(event)
	return nil
}

// checkMiddleware identity 要求的 middleware 必须已审批；已审批时调用方声明的 middleware 必须一致
func checkMiddleware(identity *state.IdentityAccount, record *state.TransactionRecord, declared *types.Pubkey) error {
	approved := record.ApprovedMiddleware
	if required := identity.RequiredMiddleware(); required != nil {
		if approved == nil || *approved != *required {
			return fmt.Errorf("%w: required=%s, approved=%s", ErrIncorrectMiddleware, required, pubkeyOrNone(approved))
		}
	}
	if approved != nil && (declared == nil || *declared != *approved) {
		return fmt.Errorf("%w: approved=%s, declared=%s", ErrIncorrectMiddleware, approved, pubkeyOrNone(declared))
	}
	return nil
}

func pubkeyOrNone(k *types.Pubkey) string {
	if k == nil {
		return "none"
	}
	return k.String()
}

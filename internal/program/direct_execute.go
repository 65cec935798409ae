package program

import (
	"fmt"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/host"
	"cryptid-sol/pkg/logger"
)

// directExecute 不经提案直接执行内联子指令。
//
// 账户布局即 ExecuteIndexSpace：
//
//	#0 - identity 账户（writable）
//	#1 - DID 账户
//	#2 - DID 程序
//	#3 - 签名者
//	#4.. - 参与账户
func (p *Program) directExecute(ctx *host.Context, body []byte) error {
	var args DirectExecuteArgs
	if err := decodeArgs(body, &args); err != nil {
		logger.Errorf("[Cryptid:DirectExecute] 参数解析失败: %v", err)
		return err
	}
	flags, err := ExecuteFlagsFromBits(args.Flags)
	if err != nil {
		logger.Errorf("[Cryptid:DirectExecute] 标志位非法: %v", err)
		return err
	}
	trace := tracer{enabled: flags.Debug(), op: "DirectExecute"}

	// 1. 校验账户结构
	space, err := ExecuteIndexSpace(ctx.Accounts, 0)
	if err != nil {
		logger.Errorf("[Cryptid:DirectExecute] 指令账户长度不足: got=%d, expect>=%d",
			len(ctx.Accounts), consts.ExecuteFrameworkAccounts)
		return err
	}
	identityInfo := space.Account(0)
	didInfo := space.Account(1)
	signer := space.Account(3)
	if err := p.checkDIDProgram(space.Account(2)); err != nil {
		return err
	}

	// 2. 校验 identity 派生
	identity, err := validateIdentity(ctx.ProgramID, identityInfo, p.didProgram, didInfo.Key, args.IdentityIndex, args.IdentityBump)
	if err != nil {
		return err
	}
	trace.printf("identity 校验通过: identity=%s, mode=%s, index=%d", identity.Address, identity.Mode, identity.Index)

	// 3. 需要 middleware 审批的 identity 不能直接执行
	if required := identity.RequiredMiddleware(); required != nil {
		logger.Errorf("[Cryptid:DirectExecute] identity 要求 middleware 审批: identity=%s, middleware=%s",
			identity.Address, required)
		return fmt.Errorf("%w: identity %s requires middleware %s", ErrIncorrectMiddleware, identity.Address, required)
	}

	// 4. 校验 DID 授权
	controllers, err := space.ResolveIndexes(args.ControllerChain)
	if err != nil {
		logger.Errorf("[Cryptid:DirectExecute] controller chain 索引越界: %v, identity=%s", err, identity.Address)
		return err
	}
	if err := p.verifyAuthority(didInfo, nil, signer, controllers); err != nil {
		return err
	}
	trace.printf("授权校验通过: did=%s, signer=%s, controllers=%d", didInfo.Key, signer.Key, len(controllers))

	// 5. 直接以当前账户列表解码并执行
	if err := invokeInstructions(ctx, identity, args.Instructions, space.Keys(), space, trace); err != nil {
		return err
	}

	p.emit(&Event{
		Type:         EventDirectExecuted,
		DID:          didInfo.Key,
		Identity:     identity.Address,
		Signer:       signer.Key,
		Instructions: uint32(len(args.Instructions)),
	})
	return nil
}

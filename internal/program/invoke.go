package program

import (
	"errors"
	"fmt"

	"cryptid-sol/internal/codec"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"

	solanatypes "github.com/blocto/solana-go-sdk/types"
)

// tracer DEBUG 标志打开时逐步输出；不改变任何执行路径
type tracer struct {
	enabled bool
	op      string
}

func (t tracer) printf(format string, args ...interface{}) {
	if !t.enabled {
		return
	}
	logger.Infof("[Cryptid:"+t.op+"] "+format, args...)
}

// invokeInstructions 按顺序解码并执行子指令。
//
// keys 为解码所用的位置表（direct_execute 即执行索引空间本身，execute_transaction
// 为框架账户 + 提案时的参与账户）；解码出的每个 key 再到 space 中按 key 找到当前句柄。
// 子指令要求 identity 签名时，以 identity 派生种子签名调用。
func invokeInstructions(
	ctx *host.Context,
	identity *state.IdentityAccount,
	instructions []codec.AbbreviatedInstruction,
	keys []types.Pubkey,
	space *IndexSpace,
	trace tracer,
) error {
	available := make(map[types.Pubkey]int, space.Len())
	for i := space.Len() - 1; i >= 0; i-- {
		available[space.Account(i).Key] = i
	}

	for i := range instructions {
		ix, err := codec.Decode(&instructions[i], keys)
		if err != nil {
			if errors.Is(err, codec.ErrIndexOutOfBounds) {
				return fmt.Errorf("%w: instruction %d: %v", ErrIndexOutOfRange, i, err)
			}
			return fmt.Errorf("%w: instruction %d: %v", ErrInvalidInstruction, i, err)
		}
		trace.printf("解码子指令: index=%d, program=%s, accounts=%d, data=%d",
			i, types.FromCommon(ix.ProgramID), len(ix.Accounts), len(ix.Data))

		if err := checkAvailable(ix, available, trace); err != nil {
			logger.Errorf("[Cryptid:Invoke] 子指令账户缺失: %v, index=%d, identity=%s", err, i, identity.Address)
			return err
		}

		if needsIdentitySignature(ix, identity.Address) {
			trace.printf("签名调用: index=%d, identity=%s, bump=%d", i, identity.Address, identity.Bump)
			err = ctx.InvokeSigned(ix, space.accounts, [][][]byte{identity.Seeds()})
		} else {
			trace.printf("普通调用: index=%d", i)
			err = ctx.Invoke(ix, space.accounts)
		}
		if err != nil {
			logger.Errorf("[Cryptid:Invoke] 子指令执行失败: %v, index=%d, program=%s, identity=%s",
				err, i, types.FromCommon(ix.ProgramID), identity.Address)
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}

// checkAvailable 子指令的程序与账户必须全部出现在当前执行账户中
func checkAvailable(ix solanatypes.Instruction, available map[types.Pubkey]int, trace tracer) error {
	program := types.FromCommon(ix.ProgramID)
	if _, ok := available[program]; !ok {
		return &MissingAccountError{Key: program}
	}
	for _, meta := range ix.Accounts {
		key := types.FromCommon(meta.PubKey)
		pos, ok := available[key]
		if !ok {
			return &MissingAccountError{Key: key}
		}
		trace.printf("账户解析: key=%s, position=%d, signer=%v, writable=%v", key, pos, meta.IsSigner, meta.IsWritable)
	}
	return nil
}

func needsIdentitySignature(ix solanatypes.Instruction, identity types.Pubkey) bool {
	for _, meta := range ix.Accounts {
		if meta.IsSigner && types.FromCommon(meta.PubKey) == identity {
			return true
		}
	}
	return false
}

package host

import (
	"encoding/binary"
	"fmt"

	"cryptid-sol/internal/types"
)

// System Program 指令编号（u32 LE），与 solana-go-sdk program/system 的编码一致
const (
	systemCreateAccount uint32 = 0
	systemTransfer      uint32 = 2
)

// processSystem 实现 CreateAccount / Transfer 两条系统指令
//
// CreateAccount 账户布局：
//
//	#0 - 出资账户（signer, writable）
//	#1 - 新账户（signer, writable）
//
// Transfer 账户布局：
//
//	#0 - 转出账户（signer, writable）
//	#1 - 接收账户（writable）
func processSystem(ctx *Context, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: system instruction too short: len=%d", ErrInvalidInstruction, len(data))
	}
	if len(ctx.Accounts) < 2 {
		return fmt.Errorf("%w: system instruction needs 2 accounts, got=%d", ErrMissingAccount, len(ctx.Accounts))
	}
	from, to := ctx.Accounts[0], ctx.Accounts[1]
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, from.Key)
	}

	switch binary.LittleEndian.Uint32(data[:4]) {
	case systemCreateAccount:
		// lamports(u64) | space(u64) | owner(32)
		if len(data) < 4+8+8+32 {
			return fmt.Errorf("%w: create account data len=%d", ErrInvalidInstruction, len(data))
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		space := binary.LittleEndian.Uint64(data[12:20])
		var owner types.Pubkey
		copy(owner[:], data[20:52])

		if !to.IsSigner {
			return fmt.Errorf("%w: new account %s", ErrMissingSignature, to.Key)
		}
		if to.Lamports != 0 || len(to.Data) != 0 || to.Owner != ctx.ProgramID {
			return fmt.Errorf("%w: %s", ErrAccountInUse, to.Key)
		}
		if err := move(from, to, lamports); err != nil {
			return err
		}
		to.Data = make([]byte, space)
		to.Owner = owner
		return nil

	case systemTransfer:
		if len(data) < 4+8 {
			return fmt.Errorf("%w: transfer data len=%d", ErrInvalidInstruction, len(data))
		}
		if len(from.Data) != 0 {
			return fmt.Errorf("%w: transfer source %s carries data", ErrInvalidInstruction, from.Key)
		}
		return move(from, to, binary.LittleEndian.Uint64(data[4:12]))

	default:
		return fmt.Errorf("%w: unsupported system instruction %d", ErrInvalidInstruction, binary.LittleEndian.Uint32(data[:4]))
	}
}

func move(from, to *AccountInfo, lamports uint64) error {
	if from.Lamports < lamports {
		return fmt.Errorf("%w: account=%s, balance=%d, need=%d", ErrInsufficientFunds, from.Key, from.Lamports, lamports)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

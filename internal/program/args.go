package program

import (
	"encoding/binary"
	"fmt"

	"cryptid-sol/internal/codec"
	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/types"

	"github.com/near/borsh-go"
)

// ExecuteFlags 执行类指令附带的标志位（闭合集合）
type ExecuteFlags uint8

const (
	// FlagDebug 逐步打印账户解析与调用过程，消耗大量计算预算；不影响执行结果
	FlagDebug ExecuteFlags = 1 << 0

	allFlags = FlagDebug
)

func ExecuteFlagsFromBits(bits uint8) (ExecuteFlags, error) {
	f := ExecuteFlags(bits)
	if f&^allFlags != 0 {
		return 0, fmt.Errorf("%w: unknown flag bits %#02x", ErrInvalidInstruction, bits)
	}
	return f, nil
}

func (f ExecuteFlags) Debug() bool {
	return f&FlagDebug != 0
}

// DirectExecuteArgs direct_execute 参数（borsh，字段顺序即线上顺序）
type DirectExecuteArgs struct {
	ControllerChain []uint8
	Instructions    []codec.AbbreviatedInstruction
	IdentityBump    uint8
	Flags           uint8
	IdentityIndex   uint32
}

// ProposeTransactionArgs propose_transaction 参数
type ProposeTransactionArgs struct {
	Instructions []codec.AbbreviatedInstruction
	AccountCount uint8          // 调用方声明的参与账户数，仅用于校对
	ExtraSigners []types.Pubkey // 提案者之外允许执行的签名者
}

// ExecuteTransactionArgs execute_transaction 参数
type ExecuteTransactionArgs struct {
	ControllerChain []uint8
	Middleware      *types.Pubkey
	IdentityBump    uint8
	Flags           uint8
	IdentityIndex   uint32
}

// ApproveExecutionArgs approve_execution 无参数
type ApproveExecutionArgs struct{}

func (a DirectExecuteArgs) Data() ([]byte, error) {
	return encodeInstructionData(consts.DirectExecute, a)
}

func (a ProposeTransactionArgs) Data() ([]byte, error) {
	return encodeInstructionData(consts.ProposeTransaction, a)
}

func (a ExecuteTransactionArgs) Data() ([]byte, error) {
	return encodeInstructionData(consts.ExecuteTransaction, a)
}

func (a ApproveExecutionArgs) Data() ([]byte, error) {
	return encodeInstructionData(consts.ApproveExecution, a)
}

// encodeInstructionData discriminator(8) | borsh(args)
func encodeInstructionData(discriminator uint64, args interface{}) ([]byte, error) {
	body, err := borsh.Serialize(args)
	if err != nil {
		return nil, fmt.Errorf("borsh serialize %T: %w", args, err)
	}
	data := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint64(data, discriminator)
	return append(data, body...), nil
}

func decodeArgs(body []byte, args interface{}) error {
	if err := borsh.Deserialize(args, body); err != nil {
		return fmt.Errorf("%w: %T: %v", ErrInvalidInstruction, args, err)
	}
	return nil
}

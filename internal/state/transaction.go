package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"cryptid-sol/internal/codec"
	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/types"

	"github.com/near/borsh-go"
)

// TransactionState 交易记录的生命周期状态，只能单调前进
type TransactionState uint8

const (
	// NotReady 为可扩展交易保留，当前不会产生该状态
	NotReady TransactionState = iota
	Ready
	Executed
)

func (s TransactionState) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Executed:
		return "Executed"
	default:
		return fmt.Sprintf("TransactionState(%d)", uint8(s))
	}
}

var (
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
	ErrAccountDataTooSmall   = errors.New("account data too small")
)

// TransactionRecord 持久化的交易提案。
//
// 链上布局（小端）：
//
//	discriminator(8) | did(32) | identity(32) | state(1) | approved_middleware(option<32>)
//	| accounts(vec<32>) | instructions(vec<AbbreviatedInstruction>) | signers(vec<32>)
type TransactionRecord struct {
	DID                types.Pubkey
	IdentityAccount    types.Pubkey
	State              TransactionState
	ApprovedMiddleware *types.Pubkey
	Accounts           []types.Pubkey // 参与账户，对应 ExecuteIndexSpace 的 #4..
	Instructions       []codec.AbbreviatedInstruction
	Signers            []types.Pubkey // 允许执行该交易的签名者
}

const (
	discriminatorSize = 8
	pubkeySize        = 32
	vecPrefixSize     = 4
)

// CalculateTransactionSize 精确计算交易记录所需空间（approved_middleware 按 Some 预留）
func CalculateTransactionSize(numAccounts int, instructions []codec.InstructionSize, numSigners int) int {
	size := discriminatorSize +
		pubkeySize + // did
		pubkeySize + // identity
		1 + // state
		1 + pubkeySize + // approved_middleware
		vecPrefixSize + pubkeySize*numAccounts +
		vecPrefixSize +
		vecPrefixSize + pubkeySize*numSigners
	for _, ix := range instructions {
		size += ix.CalculateSize()
	}
	return size
}

// Size 当前记录按上述规则对应的分配空间
func (r *TransactionRecord) Size() int {
	return CalculateTransactionSize(len(r.Accounts), codec.SizesOf(r.Instructions), len(r.Signers))
}

// HasSigner 判断 key 是否在授权签名者集合中
func (r *TransactionRecord) HasSigner(key types.Pubkey) bool {
	for _, s := range r.Signers {
		if s == key {
			return true
		}
	}
	return false
}

// transactionRecordData 线上布局，State 以 u8 存储
type transactionRecordData struct {
	DID                types.Pubkey
	IdentityAccount    types.Pubkey
	State              uint8
	ApprovedMiddleware *types.Pubkey
	Accounts           []types.Pubkey
	Instructions       []codec.AbbreviatedInstruction
	Signers            []types.Pubkey
}

// Marshal 序列化为账户数据（带 discriminator）
func (r *TransactionRecord) Marshal() ([]byte, error) {
	return marshalAccount(consts.TransactionAccountDiscriminator, transactionRecordData{
		DID:                r.DID,
		IdentityAccount:    r.IdentityAccount,
		State:              uint8(r.State),
		ApprovedMiddleware: r.ApprovedMiddleware,
		Accounts:           r.Accounts,
		Instructions:       r.Instructions,
		Signers:            r.Signers,
	})
}

// WriteTo 将记录写入已分配好的账户数据区，空间不足时返回错误（不会扩容）
func (r *TransactionRecord) WriteTo(data []byte) error {
	encoded, err := r.Marshal()
	if err != nil {
		return err
	}
	if len(encoded) > len(data) {
		return fmt.Errorf("%w: need=%d, have=%d", ErrAccountDataTooSmall, len(encoded), len(data))
	}
	n := copy(data, encoded)
	clear(data[n:])
	return nil
}

// UnmarshalTransactionRecord 从账户数据解析交易记录
func UnmarshalTransactionRecord(data []byte) (*TransactionRecord, error) {
	var d transactionRecordData
	if err := unmarshalAccount(consts.TransactionAccountDiscriminator, data, &d); err != nil {
		return nil, fmt.Errorf("decode transaction record: %w", err)
	}
	return &TransactionRecord{
		DID:                d.DID,
		IdentityAccount:    d.IdentityAccount,
		State:              TransactionState(d.State),
		ApprovedMiddleware: d.ApprovedMiddleware,
		Accounts:           d.Accounts,
		Instructions:       d.Instructions,
		Signers:            d.Signers,
	}, nil
}

// marshalAccount v 必须传值：borsh 会把顶层指针当作 Option 编码
func marshalAccount(discriminator uint64, v interface{}) ([]byte, error) {
	body, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("borsh serialize %T: %w", v, err)
	}
	buf := make([]byte, discriminatorSize, discriminatorSize+len(body))
	binary.BigEndian.PutUint64(buf, discriminator)
	return append(buf, body...), nil
}

func unmarshalAccount(discriminator uint64, data []byte, v interface{}) error {
	if len(data) < discriminatorSize {
		return fmt.Errorf("%w: len=%d", ErrAccountDataTooSmall, len(data))
	}
	if got := binary.BigEndian.Uint64(data[:discriminatorSize]); got != discriminator {
		return fmt.Errorf("%w: got=%#016x, want=%#016x", ErrDiscriminatorMismatch, got, discriminator)
	}
	return borsh.Deserialize(v, data[discriminatorSize:])
}

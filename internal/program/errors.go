package program

import (
	"errors"
	"fmt"

	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"
)

// ErrorCode 自定义错误码，从 6000 起（anchor 约定）
type ErrorCode uint32

const (
	CodeKeyMustBeSigner ErrorCode = 6000 + iota
	CodeIndexOutOfRange
	CodeInvalidAccount
	CodeInvalidTransactionState
	CodeKeyCannotChangeTransaction
	CodeIncorrectMiddleware
	CodeMissingAccount
	CodeInvalidInstruction
	CodeAccountNotWritable
	CodeTransactionAccountInUse
	CodeNotEnoughAccounts
)

// Error 不带上下文的程序错误
type Error struct {
	code ErrorCode
	msg  string
}

func (e *Error) Error() string   { return e.msg }
func (e *Error) Code() ErrorCode { return e.code }

var (
	// ErrKeyMustBeSigner 签名者未被证明为 DID 的授权者（DID 服务出错也归为此类）
	ErrKeyMustBeSigner = &Error{CodeKeyMustBeSigner, "key must be signer"}
	// ErrIndexOutOfRange 账户索引超出当前索引空间
	ErrIndexOutOfRange = &Error{CodeIndexOutOfRange, "account index out of range"}
	// ErrInvalidAccount 给出的账户与期望不符（伪造账户或错误的 bump）
	ErrInvalidAccount = &Error{CodeInvalidAccount, "invalid account"}
	// ErrInvalidTransactionState 交易记录不处于期望状态
	ErrInvalidTransactionState = &Error{CodeInvalidTransactionState, "invalid transaction state"}
	// ErrKeyCannotChangeTransaction 签名者不在交易记录的授权签名者中
	ErrKeyCannotChangeTransaction = &Error{CodeKeyCannotChangeTransaction, "key cannot change transaction"}
	// ErrIncorrectMiddleware 审批 middleware 与要求不一致
	ErrIncorrectMiddleware = &Error{CodeIncorrectMiddleware, "incorrect middleware"}
	// ErrMissingAccount 子指令需要的账户未出现在执行账户中
	ErrMissingAccount = &Error{CodeMissingAccount, "account missing from execution accounts"}
	ErrInvalidInstruction      = &Error{CodeInvalidInstruction, "invalid instruction data"}
	ErrAccountNotWritable      = &Error{CodeAccountNotWritable, "account not writable"}
	ErrTransactionAccountInUse = &Error{CodeTransactionAccountInUse, "transaction account already in use"}
	ErrNotEnoughAccounts       = &Error{CodeNotEnoughAccounts, "not enough accounts"}
)

// InvalidAccountError 带期望值的 ErrInvalidAccount；Expected 为零值表示无法计算期望地址
type InvalidAccountError struct {
	Account  types.Pubkey
	Expected types.Pubkey
}

func (e *InvalidAccountError) Error() string {
	return fmt.Sprintf("invalid account: account=%s, expected=%s", e.Account, e.Expected)
}

func (e *InvalidAccountError) Is(target error) bool { return target == ErrInvalidAccount }
func (e *InvalidAccountError) Code() ErrorCode      { return CodeInvalidAccount }

// InvalidTransactionStateError 带期望与实际状态的 ErrInvalidTransactionState
type InvalidTransactionStateError struct {
	Expected state.TransactionState
	Found    state.TransactionState
}

func (e *InvalidTransactionStateError) Error() string {
	return fmt.Sprintf("invalid transaction state: expected=%s, found=%s", e.Expected, e.Found)
}

func (e *InvalidTransactionStateError) Is(target error) bool {
	return target == ErrInvalidTransactionState
}
func (e *InvalidTransactionStateError) Code() ErrorCode { return CodeInvalidTransactionState }

// KeyCannotChangeTransactionError 带签名者的 ErrKeyCannotChangeTransaction
type KeyCannotChangeTransactionError struct {
	Key types.Pubkey
}

func (e *KeyCannotChangeTransactionError) Error() string {
	return fmt.Sprintf("key cannot change transaction: key=%s", e.Key)
}

func (e *KeyCannotChangeTransactionError) Is(target error) bool {
	return target == ErrKeyCannotChangeTransaction
}
func (e *KeyCannotChangeTransactionError) Code() ErrorCode { return CodeKeyCannotChangeTransaction }

// MissingAccountError 带缺失 key 的 ErrMissingAccount
type MissingAccountError struct {
	Key types.Pubkey
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("account missing from execution accounts: key=%s", e.Key)
}

func (e *MissingAccountError) Is(target error) bool { return target == ErrMissingAccount }
func (e *MissingAccountError) Code() ErrorCode      { return CodeMissingAccount }

// indexOutOfRange 附带越界索引与空间大小
func indexOutOfRange(space string, index uint8, length int) error {
	return fmt.Errorf("%w: space=%s, index=%d, len=%d", ErrIndexOutOfRange, space, index, length)
}

// CodeOf 提取错误码，非程序错误返回 false
func CodeOf(err error) (ErrorCode, bool) {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code(), true
	}
	return 0, false
}

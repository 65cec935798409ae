package program

import (
	"fmt"

	"cryptid-sol/internal/types"
)

// EventType 生命周期事件类型
type EventType uint32

const (
	EventProposed EventType = iota + 1
	EventApproved
	EventExecuted
	EventDirectExecuted
)

func (t EventType) String() string {
	switch t {
	case EventProposed:
		return "Proposed"
	case EventApproved:
		return "Approved"
	case EventExecuted:
		return "Executed"
	case EventDirectExecuted:
		return "DirectExecuted"
	default:
		return fmt.Sprintf("EventType(%d)", uint32(t))
	}
}

// Event 一次成功操作的摘要。
// Transaction 在 direct_execute 中为零值；Recipient 与 Lamports 仅 Executed 有意义。
type Event struct {
	Type         EventType
	DID          types.Pubkey
	Identity     types.Pubkey
	Transaction  types.Pubkey
	Signer       types.Pubkey
	Middleware   types.Pubkey
	Recipient    types.Pubkey
	Lamports     uint64
	Instructions uint32
}

// EventSink 接收生命周期事件。
// 在指令执行过程中同步调用；实现不得阻塞，返回的错误只记录日志，不影响指令结果。
type EventSink interface {
	Emit(event *Event) error
}

type nopSink struct{}

func (nopSink) Emit(*Event) error { return nil }

// EventSinkFunc 以函数形式实现 EventSink
type EventSinkFunc func(event *Event) error

func (f EventSinkFunc) Emit(event *Event) error { return f(event) }

package program

import (
	"encoding/binary"
	"fmt"
	"runtime/debug"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/did"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"
)

// Program cryptid 程序：以 DID 派生的 identity 账户代为签名执行子指令
type Program struct {
	didProgram types.Pubkey
	didService did.Service
	sink       EventSink
}

type Option func(*Program)

// WithEventSink 设置生命周期事件接收方
func WithEventSink(sink EventSink) Option {
	return func(p *Program) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithDIDProgram 覆盖允许的 DID 程序（默认 sol-did）
func WithDIDProgram(id types.Pubkey) Option {
	return func(p *Program) {
		p.didProgram = id
	}
}

func New(service did.Service, opts ...Option) *Program {
	p := &Program{
		didProgram: consts.DidProgram,
		didService: service,
		sink:       nopSink{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process 按 8 字节 discriminator 分发到各指令处理函数
func (p *Program) Process(ctx *host.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Cryptid:Process] panic: %v, stack=%s, accounts=%d", r, debug.Stack(), len(ctx.Accounts))
			err = fmt.Errorf("cryptid: panic: %v", r)
		}
	}()

	// 指令 data 至少应包含 8 字节方法 ID
	if len(data) < 8 {
		logger.Errorf("[Cryptid:Process] 指令数据过短: got=%d, expect>=8", len(data))
		return fmt.Errorf("%w: data len=%d", ErrInvalidInstruction, len(data))
	}

	body := data[8:]
	switch binary.BigEndian.Uint64(data[:8]) {
	case consts.DirectExecute:
		return p.directExecute(ctx, body)
	case consts.ProposeTransaction:
		return p.proposeTransaction(ctx, body)
	case consts.ExecuteTransaction:
		return p.executeTransaction(ctx, body)
	case consts.ApproveExecution:
		return p.approveExecution(ctx, body)
	default:
		logger.Errorf("[Cryptid:Process] 未知指令: discriminator=%#016x", binary.BigEndian.Uint64(data[:8]))
		return fmt.Errorf("%w: unknown discriminator %#016x", ErrInvalidInstruction, binary.BigEndian.Uint64(data[:8]))
	}
}

// checkDIDProgram 给出的 DID 程序必须是配置的那一个
func (p *Program) checkDIDProgram(info *host.AccountInfo) error {
	if info.Key != p.didProgram {
		logger.Errorf("[Cryptid:Process] DID 程序不匹配: got=%s, expected=%s", info.Key, p.didProgram)
		return &InvalidAccountError{Account: info.Key, Expected: p.didProgram}
	}
	return nil
}

func (p *Program) emit(event *Event) {
	if err := p.sink.Emit(event); err != nil {
		logger.Warnf("[Cryptid:Event] 事件发送失败: %v, type=%s, identity=%s", err, event.Type, event.Identity)
	}
}

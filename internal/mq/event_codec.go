package mq

import (
	"encoding/binary"
	"errors"
	"fmt"

	"cryptid-sol/internal/program"
	"cryptid-sol/internal/types"

	"github.com/near/borsh-go"
)

var ErrEventTooShort = errors.New("event payload too short")

// eventPayload 事件的 borsh 布局（类型单独放在 4 字节前缀中）
type eventPayload struct {
	DID          types.Pubkey
	Identity     types.Pubkey
	Transaction  types.Pubkey
	Signer       types.Pubkey
	Middleware   types.Pubkey
	Recipient    types.Pubkey
	Lamports     uint64
	Instructions uint32
}

// EncodeEvent 将事件编码为带类型前缀的二进制数据：
// - 前 4 字节为事件类型（uint32，小端序）
// - 后续为 borsh 序列化数据
func EncodeEvent(event *program.Event) ([]byte, error) {
	body, err := borsh.Serialize(eventPayload{
		DID:          event.DID,
		Identity:     event.Identity,
		Transaction:  event.Transaction,
		Signer:       event.Signer,
		Middleware:   event.Middleware,
		Recipient:    event.Recipient,
		Lamports:     event.Lamports,
		Instructions: event.Instructions,
	})
	if err != nil {
		return nil, fmt.Errorf("EncodeEvent: marshal %s: %w", event.Type, err)
	}
	buf := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(buf[:4], uint32(event.Type))
	return append(buf, body...), nil
}

// DecodeEvent EncodeEvent 的逆过程，供消费端使用
func DecodeEvent(data []byte) (*program.Event, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: len=%d", ErrEventTooShort, len(data))
	}
	var p eventPayload
	if err := borsh.Deserialize(&p, data[4:]); err != nil {
		return nil, fmt.Errorf("DecodeEvent: %w", err)
	}
	return &program.Event{
		Type:         program.EventType(binary.LittleEndian.Uint32(data[:4])),
		DID:          p.DID,
		Identity:     p.Identity,
		Transaction:  p.Transaction,
		Signer:       p.Signer,
		Middleware:   p.Middleware,
		Recipient:    p.Recipient,
		Lamports:     p.Lamports,
		Instructions: p.Instructions,
	}, nil
}

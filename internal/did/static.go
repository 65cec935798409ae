package did

import (
	"fmt"
	"sync"

	"cryptid-sol/internal/host"
	"cryptid-sol/internal/types"
)

// Document 简化的 DID 文档：直接授权的密钥 + 控制者 DID（DID 账户地址）
type Document struct {
	Keys        []types.Pubkey
	Controllers []types.Pubkey
}

func (d *Document) hasKey(key types.Pubkey) bool {
	for _, k := range d.Keys {
		if k == key {
			return true
		}
	}
	return false
}

func (d *Document) hasController(did types.Pubkey) bool {
	for _, c := range d.Controllers {
		if c == did {
			return true
		}
	}
	return false
}

// StaticService 内存版 DID 服务，文档由调用方预先登记；用于测试与本地演示
type StaticService struct {
	mu   sync.RWMutex
	docs map[types.Pubkey]*Document
}

func NewStaticService() *StaticService {
	return &StaticService{docs: make(map[types.Pubkey]*Document)}
}

// Register 登记 DID 账户对应的文档（覆盖已有登记）
func (s *StaticService) Register(didAccount types.Pubkey, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[didAccount] = &Document{
		Keys:        append([]types.Pubkey(nil), doc.Keys...),
		Controllers: append([]types.Pubkey(nil), doc.Controllers...),
	}
}

// RegisterGenerative 登记 authority 的默认（未上链）DID，返回其 DID 账户地址
func (s *StaticService) RegisterGenerative(authority types.Pubkey) (types.Pubkey, error) {
	addr, _, err := GenerativeDIDAddress(authority)
	if err != nil {
		return types.Pubkey{}, err
	}
	s.Register(addr, Document{Keys: []types.Pubkey{authority}})
	return addr, nil
}

func (s *StaticService) resolve(didAccount types.Pubkey) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[didAccount]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDIDNotFound, didAccount)
	}
	return doc, nil
}

// IsAuthority controller 链 controllers[0] 控制 did，controllers[i+1] 控制 controllers[i]，
// signer 必须是链尾 DID 的直接密钥。过滤条件在该实现中不生效。
func (s *StaticService) IsAuthority(
	didAccount *host.AccountInfo,
	_ *uint8,
	controllers []*host.AccountInfo,
	signer []byte,
	_ []VerificationMethodType,
	_ *uint16,
) (bool, error) {
	if len(signer) != 32 {
		return false, fmt.Errorf("%w: len=%d", ErrMalformedKey, len(signer))
	}
	var key types.Pubkey
	copy(key[:], signer)

	doc, err := s.resolve(didAccount.Key)
	if err != nil {
		return false, err
	}
	current := didAccount.Key
	for _, c := range controllers {
		if !doc.hasController(c.Key) {
			return false, fmt.Errorf("%w: controller=%s, did=%s", ErrInvalidController, c.Key, current)
		}
		if doc, err = s.resolve(c.Key); err != nil {
			return false, err
		}
		current = c.Key
	}
	return doc.hasKey(key), nil
}

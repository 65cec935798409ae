package did

import (
	"testing"

	"cryptid-sol/internal/host"
	"cryptid-sol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func info(key types.Pubkey) *host.AccountInfo {
	return &host.AccountInfo{Key: key, Account: &host.Account{}}
}

func TestStaticServiceDirectKey(t *testing.T) {
	s := NewStaticService()
	authority := types.Pubkey{0xaa}
	didKey, err := s.RegisterGenerative(authority)
	require.NoError(t, err)

	ok, err := s.IsAuthority(info(didKey), nil, nil, authority[:], nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	stranger := types.Pubkey{0xbb}
	ok, err = s.IsAuthority(info(didKey), nil, nil, stranger[:], nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticServiceControllerChain(t *testing.T) {
	s := NewStaticService()
	root, mid, leaf := types.Pubkey{1}, types.Pubkey{2}, types.Pubkey{3}
	leafKey := types.Pubkey{0x1e}

	s.Register(root, Document{Controllers: []types.Pubkey{mid}})
	s.Register(mid, Document{Controllers: []types.Pubkey{leaf}})
	s.Register(leaf, Document{Keys: []types.Pubkey{leafKey}})

	ok, err := s.IsAuthority(info(root), nil, []*host.AccountInfo{info(mid), info(leaf)}, leafKey[:], nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// 链不完整：leaf 的密钥并不直接在 mid 上
	ok, err = s.IsAuthority(info(root), nil, []*host.AccountInfo{info(mid)}, leafKey[:], nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// 顺序错误：leaf 不是 root 的 controller
	_, err = s.IsAuthority(info(root), nil, []*host.AccountInfo{info(leaf), info(mid)}, leafKey[:], nil, nil)
	assert.ErrorIs(t, err, ErrInvalidController)
}

func TestStaticServiceErrors(t *testing.T) {
	s := NewStaticService()
	key := types.Pubkey{9}

	_, err := s.IsAuthority(info(types.Pubkey{0x77}), nil, nil, key[:], nil, nil)
	assert.ErrorIs(t, err, ErrDIDNotFound)

	_, err = s.IsAuthority(info(types.Pubkey{0x77}), nil, nil, []byte{1, 2}, nil, nil)
	assert.ErrorIs(t, err, ErrMalformedKey)
}

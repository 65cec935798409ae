// Package did 定义 cryptid 对外部 DID 服务的依赖边界。
//
// cryptid 本身不做 DID 解析：它只把 DID 账户、controller 链上的账户句柄与签名者交给
// Service，并转发其布尔结果。多跳 controller 证明完全由 Service 完成。
package did

import (
	"errors"
	"fmt"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
)

// DIDAccountSeed sol-did 中 DID 账户的派生种子前缀
const DIDAccountSeed = "did-account"

var (
	ErrDIDNotFound       = errors.New("did not resolvable")
	ErrInvalidController = errors.New("account is not a controller of the did")
	ErrMalformedKey      = errors.New("malformed signer key")
)

// VerificationMethodType 验证方法类型过滤（对应 sol-did 的 VerificationMethodType）
type VerificationMethodType uint8

const (
	Ed25519VerificationKey2018 VerificationMethodType = iota
	EcdsaSecp256k1RecoveryMethod2020
	EcdsaSecp256k1VerificationKey2019
)

// Service 判断 signer 是否为 DID 的授权者。
// controllers 为空时 signer 必须直接列在 DID 文档上；否则沿 controller 链逐跳证明。
type Service interface {
	IsAuthority(
		did *host.AccountInfo,
		didBump *uint8,
		controllers []*host.AccountInfo,
		signer []byte,
		filterTypes []VerificationMethodType,
		filterFlags *uint16,
	) (bool, error)
}

// GenerativeDIDAddress sol-did 为 authority 派生的默认 DID 账户地址
func GenerativeDIDAddress(authority types.Pubkey) (types.Pubkey, uint8, error) {
	addr, bump, err := common.FindProgramAddress(
		[][]byte{[]byte(DIDAccountSeed), authority[:]},
		consts.DidProgram.Common(),
	)
	if err != nil {
		return types.Pubkey{}, 0, fmt.Errorf("derive generative did: %w", err)
	}
	return types.FromCommon(addr), bump, nil
}

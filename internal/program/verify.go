package program

import (
	"cryptid-sol/internal/host"
	"cryptid-sol/pkg/logger"
)

// verifyAuthority 证明 signer 可代表 DID 行事：controllers 为空时须为 DID 的直接密钥，
// 否则由 DID 服务沿 controller 链证明。服务错误不外泄，统一返回 ErrKeyMustBeSigner。
func (p *Program) verifyAuthority(
	did *host.AccountInfo,
	didBump *uint8,
	signer *host.AccountInfo,
	controllers []*host.AccountInfo,
) error {
	if !signer.IsSigner {
		logger.Warnf("[Cryptid:Verify] 账户未签名: signer=%s, did=%s", signer.Key, did.Key)
		return ErrKeyMustBeSigner
	}

	ok, err := p.didService.IsAuthority(did, didBump, controllers, signer.Key[:], nil, nil)
	if err != nil {
		logger.Warnf("[Cryptid:Verify] is_authority 调用失败: %v, did=%s, signer=%s", err, did.Key, signer.Key)
		return ErrKeyMustBeSigner
	}
	if !ok {
		logger.Warnf("[Cryptid:Verify] 签名者不是 DID 的授权者: did=%s, signer=%s, controllers=%d",
			did.Key, signer.Key, len(controllers))
		return ErrKeyMustBeSigner
	}
	return nil
}

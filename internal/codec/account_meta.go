package codec

import (
	"fmt"
)

// AccountMetaProps 账户权限位，闭合的 2-bit 集合（与链上 bitflags 完全一致）
type AccountMetaProps uint8

const (
	IsSigner   AccountMetaProps = 1 << 0
	IsWritable AccountMetaProps = 1 << 1

	allProps = IsSigner | IsWritable
)

func NewAccountMetaProps(isSigner, isWritable bool) AccountMetaProps {
	var p AccountMetaProps
	if isSigner {
		p |= IsSigner
	}
	if isWritable {
		p |= IsWritable
	}
	return p
}

// AccountMetaPropsFromBits 校验并解析权限位，出现未定义的位时返回错误
func AccountMetaPropsFromBits(bits uint8) (AccountMetaProps, error) {
	p := AccountMetaProps(bits)
	if p&^allProps != 0 {
		return 0, fmt.Errorf("%w: bits=%#02x", ErrInvalidMetaBits, bits)
	}
	return p, nil
}

func (p AccountMetaProps) Contains(flag AccountMetaProps) bool {
	return p&flag == flag
}

func (p AccountMetaProps) Bits() uint8 {
	return uint8(p)
}

// AbbreviatedAccountMeta 用索引代替完整公钥的账户描述（对应 solana AccountMeta）
type AbbreviatedAccountMeta struct {
	Key  uint8 // 账户在 ExecuteIndexSpace 中的索引
	Meta uint8 // AccountMetaProps
}

// AccountMetaSize 单个 AbbreviatedAccountMeta 的链上大小：key(1) + meta(1)
const AccountMetaSize = 1 + 1

func (m AbbreviatedAccountMeta) Props() (AccountMetaProps, error) {
	return AccountMetaPropsFromBits(m.Meta)
}

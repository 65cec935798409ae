package consts

import (
	"cryptid-sol/internal/types"
)

// 公钥形式的地址常量（types.Pubkey），用于链上比对、性能优化等场景。
var (
	SystemProgram types.Pubkey
	SysvarRent    types.Pubkey

	CryptidProgram types.Pubkey
	DidProgram     types.Pubkey

	CheckPassMiddleware types.Pubkey
	TimeDelayMiddleware types.Pubkey
)

// init 自动将 base58 字符串地址转换为 types.Pubkey
func init() {
	SystemProgram = types.PubkeyFromBase58(SystemProgramStr)
	SysvarRent = types.PubkeyFromBase58(SysvarRentStr)

	CryptidProgram = types.PubkeyFromBase58(CryptidProgramStr)
	DidProgram = types.PubkeyFromBase58(DidProgramStr)

	CheckPassMiddleware = types.PubkeyFromBase58(CheckPassMiddlewareStr)
	TimeDelayMiddleware = types.PubkeyFromBase58(TimeDelayMiddlewareStr)
}

package codec

import "errors"

var (
	// ErrUnknownAccount 编码时账户不在 key→index 映射中（构造交易前必须先建好映射）
	ErrUnknownAccount = errors.New("unknown account")
	// ErrIndexOutOfBounds 解码时索引超出账户列表
	ErrIndexOutOfBounds = errors.New("account index out of bounds")
	// ErrInvalidMetaBits 权限位包含未定义的 bit
	ErrInvalidMetaBits = errors.New("invalid account meta bits")
	// ErrTooManyAccounts 索引表最多容纳 256 个账户（索引为 u8）
	ErrTooManyAccounts = errors.New("too many accounts for u8 index")
)

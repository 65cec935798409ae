package program

import (
	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"
)

// validateIdentity 重新计算 identity 派生地址并与实际给出的账户比对。
//
//   - 余额为 0 且归 System Program 所有：Generative，不读取任何链上状态
//   - 归本程序所有：Persisted，解析 IdentityState，保存的 index 必须与参数一致
//   - 归 System Program 所有但有余额：Persisted，无状态（默认权限语义）
func validateIdentity(
	programID types.Pubkey,
	info *host.AccountInfo,
	didProgram, did types.Pubkey,
	index uint32,
	bump uint8,
) (*state.IdentityAccount, error) {
	expected, err := state.DeriveIdentityAddress(programID, didProgram, did, index, bump)
	if err != nil {
		logger.Errorf("[Cryptid:Identity] 派生地址失败: %v, account=%s, bump=%d", err, info.Key, bump)
		return nil, &InvalidAccountError{Account: info.Key}
	}
	if expected != info.Key {
		logger.Errorf("[Cryptid:Identity] identity 地址不匹配: account=%s, expected=%s", info.Key, expected)
		return nil, &InvalidAccountError{Account: info.Key, Expected: expected}
	}

	identity := &state.IdentityAccount{
		Address:    info.Key,
		DIDProgram: didProgram,
		DID:        did,
		Index:      index,
		Bump:       bump,
	}

	switch {
	case info.Owner == consts.SystemProgram && info.Lamports == 0:
		identity.Mode = state.Generative
	case info.Owner == programID:
		s, err := state.UnmarshalIdentityState(info.Data)
		if err != nil {
			logger.Errorf("[Cryptid:Identity] identity 状态解析失败: %v, account=%s", err, info.Key)
			return nil, &InvalidAccountError{Account: info.Key, Expected: expected}
		}
		if s.Index != index {
			logger.Errorf("[Cryptid:Identity] identity index 不一致: account=%s, stored=%d, given=%d", info.Key, s.Index, index)
			return nil, &InvalidAccountError{Account: info.Key, Expected: expected}
		}
		identity.Mode = state.Persisted
		identity.State = s
	case info.Owner == consts.SystemProgram:
		identity.Mode = state.Persisted
	default:
		logger.Errorf("[Cryptid:Identity] identity 所有者异常: account=%s, owner=%s", info.Key, info.Owner)
		return nil, &InvalidAccountError{Account: info.Key, Expected: expected}
	}
	return identity, nil
}

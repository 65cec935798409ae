package consts

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	// Programs
	SystemProgramStr = "11111111111111111111111111111111"
	SysvarRentStr    = "SysvarRent111111111111111111111111111111111"

	// Cryptid 本体与其依赖的 DID 程序（sol-did）
	CryptidProgramStr = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"
	DidProgramStr     = "didso1Dpqpm4CsiCjzP766BGY89CAdD6ZBL68cRhFPc"

	// 已知的审批 middleware 程序
	CheckPassMiddlewareStr = "midcHDoZsxvMmNtUr8howe8MWFrJeHHPbAyJF1nHvyf"
	TimeDelayMiddlewareStr = "tdMHnZiTsi6U4DYMYt8XJ4h7VKnLPgNMLNVbqgoaLTw"
)

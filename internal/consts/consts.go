package consts

// 派生种子前缀
const (
	// IdentitySeedPrefix identity（cryptid）账户派生种子：
	// ["cryptid_account", did_program, did, index(u32 LE), bump]
	IdentitySeedPrefix = "cryptid_account"
)

// 账户索引空间。
//
// 编码后的子指令与 controller chain 一律引用 ExecuteIndexSpace：
//
//	#0 - identity 账户
//	#1 - DID 账户
//	#2 - DID 程序
//	#3 - 签名者
//	#4.. - 参与账户（提案时存入交易记录的 accounts 列表）
//
// ProposeIndexSpace 多出两个框架账户（交易账户、System Program），
// 两个空间里参与账户的位置固定相差 IndexSpaceOffset。
const (
	ExecuteFrameworkAccounts = 4
	ProposeFrameworkAccounts = 6
	IndexSpaceOffset         = ProposeFrameworkAccounts - ExecuteFrameworkAccounts
)

// Anchor 指令 discriminator：sha256("global:<name>")[:8]，按大端读成 uint64
const (
	DirectExecute      uint64 = 0xb3f9bba7ece94723
	ProposeTransaction uint64 = 0x23cca9f04a461fec
	ExecuteTransaction uint64 = 0xe7ad315beb184413
	ApproveExecution   uint64 = 0x166014beb10cf28d
)

// Anchor 账户 discriminator：sha256("account:<Name>")[:8]
const (
	TransactionAccountDiscriminator uint64 = 0x927dfda7fae2af7b
	CryptidAccountDiscriminator     uint64 = 0x894eb7a296ced795
)

// 租金参数（与主网默认值一致）
const (
	LamportsPerByteYear    uint64 = 3480
	ExemptionThreshold     uint64 = 2
	AccountStorageOverhead uint64 = 128
)

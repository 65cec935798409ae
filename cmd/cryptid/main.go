package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"cryptid-sol/internal/client"
	"cryptid-sol/internal/codec"
	"cryptid-sol/internal/config"
	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/svc"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"
)

var configFile = flag.String("f", "etc/cryptid.yaml", "the config file")

const usage = `usage: cryptid [-f config] <command> [args]

commands:
  derive  -did <key> [-index n]             identity 地址与 bump
  size    -accounts n [-signers n] -ix a:d,...  交易记录大小与免租金额
  inspect -tx <key> | -identity <key>       读取链上交易记录 / identity 状态
  demo    [-debug]                          在内存账本上演示 propose -> execute -> 重复 execute
  config                                    输出生效的配置
`

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
			os.Exit(2)
		}
	}()

	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := flag.Args()[1:]
	switch cmd := flag.Arg(0); cmd {
	case "derive":
		err = runDerive(c, args)
	case "size":
		err = runSize(args)
	case "inspect":
		err = runInspect(c, args)
	case "demo":
		err = runDemo(c, args)
	case "config":
		err = runConfig(c)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
		flag.Usage()
	}
	if err != nil {
		logger.Errorf("[Cryptid:CLI] %s 失败: %v", flag.Arg(0), err)
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig 默认配置文件不存在时使用内置默认值
func loadConfig(path string) (*config.CryptidConfig, error) {
	c, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == "etc/cryptid.yaml" {
		return config.Default(), nil
	}
	return c, err
}

func runConfig(c *config.CryptidConfig) error {
	out, err := c.Dump()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runDerive(c *config.CryptidConfig, args []string) error {
	set := flag.NewFlagSet("derive", flag.ExitOnError)
	didArg := set.String("did", "", "DID 账户地址（base58）")
	index := set.Uint("index", 0, "identity index")
	_ = set.Parse(args)

	did, err := types.TryPubkeyFromBase58(*didArg)
	if err != nil {
		return err
	}
	identity, err := client.DeriveIdentity(c.CryptidProgram(), c.DidProgram(), did, uint32(*index))
	if err != nil {
		return err
	}
	fmt.Printf("identity: %s\nbump:     %d\nindex:    %d\n", identity.Address, identity.Bump, identity.Index)
	return nil
}

func runSize(args []string) error {
	set := flag.NewFlagSet("size", flag.ExitOnError)
	accounts := set.Int("accounts", 0, "参与账户数")
	signers := set.Int("signers", 1, "授权签名者数（含提案者）")
	ixArg := set.String("ix", "", "子指令尺寸，格式 accounts:dataLen，多个用英文逗号分隔")
	_ = set.Parse(args)

	sizes, err := parseInstructionSizes(*ixArg)
	if err != nil {
		return err
	}
	size := state.CalculateTransactionSize(*accounts, sizes, *signers)
	fmt.Printf("size: %d\nrent: %d\n", size, client.RentExemptMinimum(size))
	return nil
}

func parseInstructionSizes(s string) ([]codec.InstructionSize, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	sizes := make([]codec.InstructionSize, 0, len(parts))
	for _, part := range parts {
		a, d, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid instruction size %q, want accounts:dataLen", part)
		}
		accounts, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid accounts in %q: %w", part, err)
		}
		dataLen, err := strconv.Atoi(d)
		if err != nil {
			return nil, fmt.Errorf("invalid data length in %q: %w", part, err)
		}
		sizes = append(sizes, codec.InstructionSize{Accounts: accounts, DataLen: dataLen})
	}
	return sizes, nil
}

func runInspect(c *config.CryptidConfig, args []string) error {
	set := flag.NewFlagSet("inspect", flag.ExitOnError)
	txArg := set.String("tx", "", "交易账户地址（base58）")
	identityArg := set.String("identity", "", "identity 账户地址（base58）")
	_ = set.Parse(args)

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		return err
	}
	defer serviceContext.Close()

	ctx := context.Background()
	switch {
	case *txArg != "":
		addr, err := types.TryPubkeyFromBase58(*txArg)
		if err != nil {
			return err
		}
		record, err := serviceContext.Fetcher.FetchTransactionRecord(ctx, addr)
		if err != nil {
			return err
		}
		printRecord(addr, record)
	case *identityArg != "":
		addr, err := types.TryPubkeyFromBase58(*identityArg)
		if err != nil {
			return err
		}
		s, err := serviceContext.Fetcher.FetchIdentityState(ctx, addr)
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Printf("identity %s: generative（未上链）\n", addr)
			return nil
		}
		fmt.Printf("identity %s: persisted, index=%d, middleware=%s\n", addr, s.Index, optionalKey(s.Middleware))
	default:
		return errors.New("inspect: -tx or -identity is required")
	}
	return nil
}

func printRecord(addr types.Pubkey, r *state.TransactionRecord) {
	fmt.Printf("transaction: %s\n", addr)
	fmt.Printf("  state:      %s\n", r.State)
	fmt.Printf("  did:        %s\n", r.DID)
	fmt.Printf("  identity:   %s\n", r.IdentityAccount)
	fmt.Printf("  middleware: %s\n", optionalKey(r.ApprovedMiddleware))
	fmt.Printf("  signers:\n")
	for _, s := range r.Signers {
		fmt.Printf("    %s\n", s)
	}
	fmt.Printf("  accounts:\n")
	for i, a := range r.Accounts {
		fmt.Printf("    #%d %s\n", i+consts.ExecuteFrameworkAccounts, a)
	}
	fmt.Printf("  instructions:\n")
	for i, ix := range r.Instructions {
		fmt.Printf("    [%d] program=#%d, accounts=%v, data=%d bytes\n", i, ix.ProgramID, ix.Accounts, len(ix.Data))
	}
}

func optionalKey(k *types.Pubkey) string {
	if k == nil {
		return "-"
	}
	return k.String()
}

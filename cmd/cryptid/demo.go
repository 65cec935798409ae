package main

import (
	"errors"
	"flag"
	"fmt"

	"cryptid-sol/internal/client"
	"cryptid-sol/internal/config"
	"cryptid-sol/internal/did"
	"cryptid-sol/internal/host"
	"cryptid-sol/internal/program"
	"cryptid-sol/internal/state"
	"cryptid-sol/internal/svc"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"

	"github.com/blocto/solana-go-sdk/program/system"
	solanatypes "github.com/blocto/solana-go-sdk/types"
)

const (
	demoAuthorityLamports = 10_000_000_000
	demoIdentityLamports  = 1_000_000
	demoTransferLamports  = 250_000
)

func newDemoKey() types.Pubkey {
	return types.FromCommon(solanatypes.NewAccount().PublicKey)
}

// runDemo 在内存账本上走一遍：identity 代签转账的提案 -> 执行 -> 重复执行被拒
func runDemo(c *config.CryptidConfig, args []string) error {
	set := flag.NewFlagSet("demo", flag.ExitOnError)
	debugFlag := set.Bool("debug", false, "execute 时打开 DEBUG 标志")
	_ = set.Parse(args)

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		return err
	}
	defer serviceContext.Close()

	// 1. 账本与 DID
	ledger := host.NewLedger()
	dids := did.NewStaticService()
	ledger.Register(c.CryptidProgram(), program.New(dids,
		program.WithDIDProgram(c.DidProgram()),
		program.WithEventSink(serviceContext.EventSink()),
	))

	authority := newDemoKey()
	ledger.Airdrop(authority, demoAuthorityLamports)
	didAccount, err := dids.RegisterGenerative(authority)
	if err != nil {
		return err
	}
	identity, err := client.DeriveIdentity(c.CryptidProgram(), c.DidProgram(), didAccount, 0)
	if err != nil {
		return err
	}
	ledger.Airdrop(identity.Address, demoIdentityLamports)
	fmt.Printf("authority: %s\ndid:       %s\nidentity:  %s (bump=%d)\n\n", authority, didAccount, identity.Address, identity.Bump)

	// 2. 提案
	b, err := client.NewBuilder(c.CryptidProgram(), c.DidProgram(), identity, authority)
	if err != nil {
		return err
	}
	tx, dest := newDemoKey(), newDemoKey()
	proposal, err := b.Propose(authority, tx, []solanatypes.Instruction{
		system.Transfer(system.TransferParam{
			From:   identity.Address.Common(),
			To:     dest.Common(),
			Amount: demoTransferLamports,
		}),
	})
	if err != nil {
		return err
	}
	if err := ledger.Submit(proposal, authority, tx); err != nil {
		return fmt.Errorf("propose: %w", err)
	}
	acc, _ := ledger.GetAccount(tx)
	record, err := state.UnmarshalTransactionRecord(acc.Data)
	if err != nil {
		return err
	}
	printRecord(tx, record)
	fmt.Printf("  rent held:  %d\n\n", acc.Lamports)

	// 3. 执行，租金退回提案者
	var flags program.ExecuteFlags
	if *debugFlag {
		flags = program.FlagDebug
	}
	execute, err := b.Execute(tx, authority, nil, flags)
	if err != nil {
		return err
	}
	if err := ledger.Submit(execute, authority); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	fmt.Printf("execute ok: identity=%d, dest=%d, tx=%d\n",
		ledger.Balance(identity.Address), ledger.Balance(dest), ledger.Balance(tx))

	// 4. 重复执行
	err = ledger.Submit(execute, authority)
	if err == nil {
		return errors.New("re-execute unexpectedly succeeded")
	}
	code, _ := program.CodeOf(err)
	fmt.Printf("re-execute rejected: code=%d, err=%v\n", code, err)
	logger.Infof("[Cryptid:Demo] 完成: tx=%s, dest=%d", tx, ledger.Balance(dest))
	return nil
}

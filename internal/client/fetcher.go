package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptid-sol/internal/state"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"

	solanaclient "github.com/blocto/solana-go-sdk/client"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountGetter 读取单个账户数据，*solanaclient.Client 即满足
type AccountGetter interface {
	GetAccountInfo(ctx context.Context, base58Addr string) (solanaclient.AccountInfo, error)
}

// RecordStore 交易记录原始数据缓存，*RecordCache 即满足
type RecordStore interface {
	Get(ctx context.Context, addr types.Pubkey) ([]byte, bool, error)
	Set(ctx context.Context, addr types.Pubkey, data []byte) error
	Delete(ctx context.Context, addr types.Pubkey) error
}

// Fetcher 从集群读取 cryptid 账户，可选缓存
type Fetcher struct {
	rpc     AccountGetter
	cache   RecordStore
	timeout time.Duration
}

// NewFetcher cache 为 nil 时不使用缓存
func NewFetcher(rpc AccountGetter, cache RecordStore, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fetcher{rpc: rpc, cache: cache, timeout: timeout}
}

// NewRPCFetcher 以 endpoint 建立 RPC 客户端
func NewRPCFetcher(endpoint string, cache *RecordCache, timeout time.Duration) (*Fetcher, error) {
	c := solanaclient.NewClient(endpoint)
	if c == nil {
		return nil, errors.New("rpc client init failed")
	}
	if cache == nil {
		return NewFetcher(c, nil, timeout), nil
	}
	return NewFetcher(c, cache, timeout), nil
}

// FetchTransactionRecord 读取并解析交易记录；缓存失败只记录日志
func (f *Fetcher) FetchTransactionRecord(ctx context.Context, addr types.Pubkey) (*state.TransactionRecord, error) {
	if f.cache != nil {
		data, ok, err := f.cache.Get(ctx, addr)
		if err != nil {
			logger.Warnf("[Client:Fetcher] 读取缓存失败: %v, tx=%s", err, addr)
		}
		if ok {
			if record, err := state.UnmarshalTransactionRecord(data); err == nil {
				return record, nil
			}
			logger.Warnf("[Client:Fetcher] 缓存数据无法解析, 删除并回源: tx=%s", addr)
			if err := f.cache.Delete(ctx, addr); err != nil {
				logger.Warnf("[Client:Fetcher] 删除缓存失败: %v, tx=%s", err, addr)
			}
		}
	}

	data, err := f.fetchData(ctx, addr)
	if err != nil {
		return nil, err
	}
	record, err := state.UnmarshalTransactionRecord(data)
	if err != nil {
		return nil, fmt.Errorf("tx=%s: %w", addr, err)
	}

	if f.cache != nil && record.State == state.Executed {
		if err := f.cache.Set(ctx, addr, data); err != nil {
			logger.Warnf("[Client:Fetcher] 写入缓存失败: %v, tx=%s", err, addr)
		}
	}
	return record, nil
}

// FetchIdentityState 读取已上链 identity 的状态；账户不存在（Generative）时返回 (nil, nil)
func (f *Fetcher) FetchIdentityState(ctx context.Context, addr types.Pubkey) (*state.IdentityState, error) {
	data, err := f.fetchData(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state.UnmarshalIdentityState(data)
}

func (f *Fetcher) fetchData(ctx context.Context, addr types.Pubkey) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	info, err := f.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, fmt.Errorf("GetAccountInfo failed: account=%s: %w", addr, err)
	}
	logger.Debugf("[Client:Fetcher] GetAccountInfo 成功: account=%s, lamports=%d, data=%d, 耗时: %v",
		addr, info.Lamports, len(info.Data), time.Since(start))

	if len(info.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return info.Data, nil
}

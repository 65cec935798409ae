package svc

import (
	"context"
	"time"

	"cryptid-sol/internal/client"
	"cryptid-sol/internal/config"
	"cryptid-sol/internal/mq"
	"cryptid-sol/internal/program"
	"cryptid-sol/pkg/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
)

// ServiceContext CLI 各子命令共享的外部资源；未配置的资源保持为 nil
type ServiceContext struct {
	Config   *config.CryptidConfig
	Redis    *redis.Client
	Producer *kafka.Producer
	Sink     *mq.KafkaSink
	Fetcher  *client.Fetcher
}

// NewServiceContext 按配置初始化 RPC、缓存与事件生产者
func NewServiceContext(c *config.CryptidConfig) (*ServiceContext, error) {
	ctx := &ServiceContext{Config: c}

	// 1. 交易记录缓存（可选）
	var cache *client.RecordCache
	if c.RedisConf.Addr != "" {
		ctx.Redis = redis.NewClient(&redis.Options{
			Addr: c.RedisConf.Addr,
			DB:   c.RedisConf.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := ctx.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// 缓存不可用时回源 RPC
			logger.Warnf("[Svc] Redis 不可用, 禁用缓存: %v, addr=%s", err, c.RedisConf.Addr)
			_ = ctx.Redis.Close()
			ctx.Redis = nil
		} else {
			cache = client.NewRecordCache(ctx.Redis, c.RedisConf.TTL())
		}
	}

	// 2. RPC 读取
	fetcher, err := client.NewRPCFetcher(c.RpcConf.Endpoint, cache, c.RpcConf.Timeout())
	if err != nil {
		ctx.Close()
		return nil, err
	}
	ctx.Fetcher = fetcher

	// 3. 生命周期事件（可选）
	if c.KafkaProducerConf.Brokers != "" {
		producer, err := mq.NewKafkaProducer(c.KafkaProducerConf)
		if err != nil {
			logger.Errorf("[Svc] Kafka producer 初始化失败: %v", err)
			ctx.Close()
			return nil, err
		}
		ctx.Producer = producer
		ctx.Sink = mq.NewKafkaSink(producer, c.KafkaProducerConf.Topic,
			c.KafkaProducerConf.Partitions, c.KafkaProducerConf.SendTimeout())
	}

	logger.Infof("[Svc] 服务上下文初始化完成: rpc=%s, cache=%t, events=%t",
		c.RpcConf.Endpoint, cache != nil, ctx.Sink != nil)
	return ctx, nil
}

// EventSink 未配置 Kafka 时退化为日志输出
func (ctx *ServiceContext) EventSink() program.EventSink {
	if ctx.Sink != nil {
		return ctx.Sink
	}
	return program.EventSinkFunc(func(e *program.Event) error {
		logger.Infof("[Svc:Event] %s: identity=%s, tx=%s, signer=%s, lamports=%d",
			e.Type, e.Identity, e.Transaction, e.Signer, e.Lamports)
		return nil
	})
}

// Close 关闭服务上下文中的资源（先刷出事件再关闭生产者）
func (ctx *ServiceContext) Close() {
	if ctx.Sink != nil {
		ctx.Sink.Close()
	}
	if ctx.Producer != nil {
		ctx.Producer.Flush(5000)
		ctx.Producer.Close()
	}
	if ctx.Redis != nil {
		_ = ctx.Redis.Close()
	}
}

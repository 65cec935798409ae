package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"cryptid-sol/internal/program"
	"cryptid-sol/pkg/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

var (
	ErrSinkFull   = errors.New("event queue full")
	ErrSinkClosed = errors.New("event sink closed")
)

const (
	defaultQueueSize  = 1024
	defaultFlushBatch = 64
	flushInterval     = 200 * time.Millisecond
)

// sendFunc 发送一批消息，返回失败的部分
type sendFunc func(ctx context.Context, jobs []*KafkaJob) []KafkaSendResult

// KafkaSink 实现 program.EventSink：Emit 只入队，后台协程批量发送到 Kafka。
// 同一 identity 的事件落在同一分区，保证消费端按提交顺序看到。
type KafkaSink struct {
	topic      string
	partitions uint32
	queue      chan *KafkaJob
	send       sendFunc

	mu     sync.RWMutex // 保护 closed，保证 Close 之后不再入队
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewKafkaSink 创建并启动事件发送协程
func NewKafkaSink(producer *kafka.Producer, topic string, partitions int, sendTimeout time.Duration) *KafkaSink {
	return newKafkaSink(topic, partitions, func(ctx context.Context, jobs []*KafkaJob) []KafkaSendResult {
		_, failed := SendKafkaJobs(ctx, producer, jobs, sendTimeout)
		return failed
	})
}

func newKafkaSink(topic string, partitions int, send sendFunc) *KafkaSink {
	if partitions <= 0 {
		partitions = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &KafkaSink{
		topic:      topic,
		partitions: uint32(partitions),
		queue:      make(chan *KafkaJob, defaultQueueSize),
		send:       send,
		cancel:     cancel,
	}
	s.wg.Add(1)
	go s.loop(ctx)
	return s
}

// Emit 编码并入队，队列满时丢弃并返回 ErrSinkFull，Close 之后返回 ErrSinkClosed
func (s *KafkaSink) Emit(event *program.Event) error {
	value, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	job := &KafkaJob{
		Topic:     s.topic,
		Partition: int32(PartitionHashBytes(event.Identity[:], s.partitions)),
		Key:       append([]byte(nil), event.Identity[:]...),
		Value:     value,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- job:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close 停止接收并发送队列中剩余的事件，可重复调用
func (s *KafkaSink) Close() {
	s.mu.Lock()
	done := s.closed
	s.closed = true
	s.mu.Unlock()
	if done {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *KafkaSink) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*KafkaJob, 0, defaultFlushBatch)
	for {
		select {
		case job := <-s.queue:
			batch = append(batch, job)
			if len(batch) >= defaultFlushBatch {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
		case <-ctx.Done():
			for {
				select {
				case job := <-s.queue:
					batch = append(batch, job)
				default:
					s.flush(batch)
					return
				}
			}
		}
	}
}

func (s *KafkaSink) flush(batch []*KafkaJob) []*KafkaJob {
	if len(batch) == 0 {
		return batch
	}
	// 关闭阶段同样等待 ack，因此不复用已取消的 ctx
	failed := s.send(context.Background(), batch)
	for _, f := range failed {
		logger.Errorf("[Mq:KafkaSink] 事件发送失败: %v, topic=%s, partition=%d", f.Err, f.Job.Topic, f.Job.Partition)
	}
	if len(failed) > 0 {
		logger.Warnf("[Mq:KafkaSink] 批量发送部分失败: total=%d, failed=%d", len(batch), len(failed))
	}
	return batch[:0]
}

// PartitionHashBytes 从 key 中选取 4 字节构造 uint32 并模 mod，用于分区选择。
// 非加密哈希，仅适合负载均匀场景。
func PartitionHashBytes(b []byte, mod uint32) uint32 {
	if len(b) < 28 || mod <= 1 {
		return 0
	}
	switch mod {
	case 2, 4, 8, 16:
		return uint32(b[27]) & (mod - 1)
	}
	hash := uint32(b[7])<<24 | uint32(b[15])<<16 | uint32(b[19])<<8 | uint32(b[27])
	return hash % mod
}

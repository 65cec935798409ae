package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptid-sol/internal/consts"
	"cryptid-sol/internal/types"
	"cryptid-sol/pkg/logger"

	"github.com/zeromicro/go-zero/core/conf"
	"gopkg.in/yaml.v3"
)

// DefaultRpcEndpoint 未配置 rpc.endpoint 时使用的集群
const DefaultRpcEndpoint = "https://api.devnet.solana.com"

// 字段通过 go-zero conf 加载（json tag 声明 key、optional 与 default），yaml tag 用于 Dump 输出

type LogConfig struct {
	Format   string `json:"format,default=console" yaml:"format"` // 日志格式，支持 "console" 或 "json"
	LogDir   string `json:"log_dir,optional" yaml:"log_dir"`      // 日志目录（可为相对路径或绝对路径）
	Level    string `json:"level,default=info" yaml:"level"`      // 日志级别：debug / info / warn / error
	Compress bool   `json:"compress,optional" yaml:"compress"`    // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// RpcConfig Solana RPC 配置
type RpcConfig struct {
	Endpoint  string `json:"endpoint,default=https://api.devnet.solana.com" yaml:"endpoint"` // RPC 地址
	TimeoutMs int    `json:"timeout_ms,default=5000" yaml:"timeout_ms"`                      // 单次请求超时（毫秒）
}

func (c *RpcConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RedisConfig 交易记录缓存配置；Addr 为空表示不启用缓存
type RedisConfig struct {
	Addr   string `json:"addr,optional" yaml:"addr"`             // Redis 地址
	DB     int    `json:"db,optional" yaml:"db"`                 // 库编号
	TTLSec int    `json:"ttl_sec,default=86400" yaml:"ttl_sec"` // 已执行记录的缓存时间（秒）
}

func (c *RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// KafkaProducerConfig 生命周期事件的 Kafka 生产者配置；Brokers 为空表示不发送事件
type KafkaProducerConfig struct {
	Brokers       string `json:"brokers,optional" yaml:"brokers"`                     // Kafka broker 地址，多个用英文逗号分隔
	Topic         string `json:"topic,default=cryptid-events" yaml:"topic"`           // 事件 topic
	Partitions    int    `json:"partitions,default=1" yaml:"partitions"`              // topic 分区数（按 identity 选择分区）
	BatchSize     int    `json:"batch_size,optional" yaml:"batch_size"`               // 批处理大小（单位字节）
	LingerMs      int    `json:"linger_ms,optional" yaml:"linger_ms"`                 // 批处理最大延迟（毫秒）
	SendTimeoutMs int    `json:"send_timeout_ms,default=3000" yaml:"send_timeout_ms"` // 单条事件等待 ack 的超时时间
}

func (c *KafkaProducerConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMs) * time.Millisecond
}

// ProgramsConfig 程序地址（base58），为空时使用内置地址
type ProgramsConfig struct {
	Cryptid string `json:"cryptid,optional" yaml:"cryptid"`
	Did     string `json:"did,optional" yaml:"did"`
}

// CryptidConfig 主配置
type CryptidConfig struct {
	LogConf           LogConfig           `json:"logger,optional" yaml:"logger"`                 // 日志配置
	RpcConf           RpcConfig           `json:"rpc,optional" yaml:"rpc"`                       // RPC 配置
	RedisConf         RedisConfig         `json:"redis,optional" yaml:"redis"`                   // 缓存配置
	KafkaProducerConf KafkaProducerConfig `json:"kafka_producer,optional" yaml:"kafka_producer"` // Kafka 生产者配置
	ProgramsConf      ProgramsConfig      `json:"programs,optional" yaml:"programs"`             // 程序地址
}

// Load 读取配置文件（按扩展名选择格式），填充默认值并校验
func Load(path string) (*CryptidConfig, error) {
	c := Default()
	if err := conf.Load(path, c); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse 解析 YAML 配置内容
func Parse(raw []byte) (*CryptidConfig, error) {
	c := Default()
	if err := conf.LoadFromYamlBytes(raw, c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default 只含默认值的配置；缺省的配置段在加载前由此填充
func Default() *CryptidConfig {
	c := &CryptidConfig{}
	if err := conf.FillDefault(c); err != nil {
		panic(fmt.Sprintf("fill default config: %v", err))
	}
	return c
}

// Dump 以 YAML 输出生效的配置
func (c *CryptidConfig) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *CryptidConfig) validate() error {
	var errs []error
	if _, err := parseProgram(c.ProgramsConf.Cryptid, consts.CryptidProgram); err != nil {
		errs = append(errs, fmt.Errorf("programs.cryptid: %w", err))
	}
	if _, err := parseProgram(c.ProgramsConf.Did, consts.DidProgram); err != nil {
		errs = append(errs, fmt.Errorf("programs.did: %w", err))
	}
	if c.KafkaProducerConf.Partitions <= 0 {
		errs = append(errs, fmt.Errorf("kafka_producer.partitions: must be positive, got %d", c.KafkaProducerConf.Partitions))
	}
	return errors.Join(errs...)
}

func parseProgram(s string, fallback types.Pubkey) (types.Pubkey, error) {
	if s = strings.TrimSpace(s); s == "" {
		return fallback, nil
	}
	return types.TryPubkeyFromBase58(s)
}

// CryptidProgram 地址已在加载时校验
func (c *CryptidConfig) CryptidProgram() types.Pubkey {
	key, _ := parseProgram(c.ProgramsConf.Cryptid, consts.CryptidProgram)
	return key
}

func (c *CryptidConfig) DidProgram() types.Pubkey {
	key, _ := parseProgram(c.ProgramsConf.Did, consts.DidProgram)
	return key
}

// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/tasks"
)

// maxAttempts 是同一任务在进程内的最大尝试次数，也是跨重启的最大投递次数。
const maxAttempts = 3

const defaultRetryInterval = 2 * time.Second

// TaskProcessor 由能够执行向量化任务的组件实现，消费者不依赖具体的流水线实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.VectorizeTask) error
}

// Producer 把向量化任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Infof("[Kafka] 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

// ProduceVectorizeTask 发送一个向量化任务。消息键是文件键，同一文件的任务落在同一分区。
func (p *Producer) ProduceVectorizeTask(ctx context.Context, task tasks.VectorizeTask) error {
	if task.RequestedAt.IsZero() {
		task.RequestedAt = time.Now().UTC()
	}
	value, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.Key), Value: value})
}

func (p *Producer) Close() error { return p.writer.Close() }

// Consumer 消费向量化任务。失败的任务在进程内按指数退避重试，投递次数记录在 Redis 中。
type Consumer struct {
	reader        *kafka.Reader
	rdb           *redis.Client
	processor     TaskProcessor
	retryInterval time.Duration
}

// NewConsumer 创建消费者。rdb 为空时不统计跨重启的投递次数。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, rdb: rdb, processor: processor, retryInterval: defaultRetryInterval}
}

// Run 循环处理消息直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("[Kafka] 消费者已启动, topic: %s", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("[Kafka] 消费者已停止")
				return
			}
			log.Error("[Kafka] 读取消息失败", err)
			return
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	log.Infof("[Kafka] 收到消息: partition %d, offset %d", m.Partition, m.Offset)

	var task tasks.VectorizeTask
	if err := json.Unmarshal(m.Value, &task); err != nil || task.Key == "" {
		log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	deliveriesKey := fmt.Sprintf("kafka:attempts:%s", task.Key)
	if c.exhausted(ctx, deliveriesKey) {
		// 进程在处理该任务时多次退出，不再尝试
		log.Errorf("[Kafka] 任务投递次数超过 %d, 提交 offset 跳过: Key=%s", maxAttempts, task.Key)
		c.forget(ctx, deliveriesKey)
		c.commit(ctx, m)
		return
	}

	err := c.processWithRetry(ctx, task)
	if ctx.Err() != nil {
		// 停机中断，offset 不提交，重启后从该消息继续
		log.Warnf("[Kafka] 消费者停止, 任务未完成: Key=%s", task.Key)
		return
	}
	if err != nil {
		log.Errorf("[Kafka] 任务在 %d 次尝试后仍失败, 提交 offset 放弃: Key=%s, Error: %v", maxAttempts, task.Key, err)
	} else {
		log.Infof("[Kafka] 任务处理成功: Key=%s", task.Key)
	}
	c.forget(ctx, deliveriesKey)
	c.commit(ctx, m)
}

// processWithRetry 最多尝试 maxAttempts 次。正在处理中（锁被占用）之类的错误同样重试。
func (c *Consumer) processWithRetry(ctx context.Context, task tasks.VectorizeTask) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 10 * c.retryInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := c.processor.Process(ctx, task)
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnf("[Kafka] 任务第 %d 次处理失败, %s 后重试: Key=%s, Error: %v", attempts, next, task.Key, err)
		}),
	)
	return err
}

// exhausted 累加投递次数，超过阈值时返回 true。Redis 不可用时总是继续处理。
func (c *Consumer) exhausted(ctx context.Context, deliveriesKey string) bool {
	if c.rdb == nil {
		return false
	}
	deliveries, err := c.rdb.Incr(ctx, deliveriesKey).Result()
	if err != nil {
		log.Warnf("[Kafka] 记录投递次数失败: %v", err)
		return false
	}
	_ = c.rdb.Expire(ctx, deliveriesKey, 24*time.Hour).Err()
	return deliveries > maxAttempts
}

func (c *Consumer) forget(ctx context.Context, deliveriesKey string) {
	if c.rdb != nil {
		_ = c.rdb.Del(ctx, deliveriesKey).Err()
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] 提交 offset 失败: %v", err)
	}
}

func brokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQInboxConfig 描述 RabbitMQ 收件箱的连接参数。
type RabbitMQInboxConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQInbox 通过 AMQP 队列接收 agent 注资请求。
// 后台消费协程把消息汇入内存收件箱，Pending/Clear 在其上工作；
// 消息在落入内存后确认，协调器消费的是进程内快照。
type RabbitMQInbox struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	pending *MemoryInbox
}

// NewRabbitMQInbox 创建 RabbitMQ 收件箱实例。
func NewRabbitMQInbox(cfg RabbitMQInboxConfig) (*RabbitMQInbox, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "treasury.funding_requests"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("设置 RabbitMQ QOS 失败: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQInbox{
		conn:    conn,
		ch:      ch,
		queue:   queue,
		pending: NewMemoryInbox(),
	}, nil
}

// Publish 将请求发布到 AMQP 队列。
func (q *RabbitMQInbox) Publish(ctx context.Context, req Request) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 收件箱未初始化")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化注资请求失败: %w", err)
	}
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

// Run 启动消费协程，把 AMQP 消息汇入内存收件箱，直到上下文取消。
func (q *RabbitMQInbox) Run(ctx context.Context) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 收件箱未初始化")
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("RabbitMQ 投递通道已关闭")
			}
			var req Request
			if err := json.Unmarshal(msg.Body, &req); err != nil {
				// 无法解析的消息直接确认丢弃，避免死循环重投。
				_ = msg.Ack(false)
				continue
			}
			if err := q.pending.Publish(ctx, req); err != nil {
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// Pending 返回已汇入内存的未处理请求。
func (q *RabbitMQInbox) Pending(ctx context.Context, serviceID string) ([]Request, error) {
	return q.pending.Pending(ctx, serviceID)
}

// Clear 清空服务的未处理请求。
func (q *RabbitMQInbox) Clear(ctx context.Context, serviceID string) error {
	return q.pending.Clear(ctx, serviceID)
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQInbox) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

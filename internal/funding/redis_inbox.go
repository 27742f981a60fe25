package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisInboxConfig 描述 Redis 收件箱的连接参数。
type RedisInboxConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// RedisInbox 用 Redis list 持久化每个服务的注资请求，
// 供多副本部署共享同一份待处理集合。
type RedisInbox struct {
	client *redis.Client
	prefix string
}

// NewRedisInbox 创建 Redis 收件箱实例。
func NewRedisInbox(cfg RedisInboxConfig) (*RedisInbox, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "treasury:requests"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisInbox{client: client, prefix: prefix}, nil
}

func (r *RedisInbox) key(serviceID string) string {
	return r.prefix + ":" + serviceID
}

// Publish 将请求追加到服务对应的 list。
func (r *RedisInbox) Publish(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化注资请求失败: %w", err)
	}
	if err := r.client.RPush(ctx, r.key(req.ServiceID), payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布注资请求失败: %w", err)
	}
	return nil
}

// Pending 读取服务的全部未处理请求，不消费。
func (r *RedisInbox) Pending(ctx context.Context, serviceID string) ([]Request, error) {
	values, err := r.client.LRange(ctx, r.key(serviceID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("Redis 读取注资请求失败: %w", err)
	}
	requests := make([]Request, 0, len(values))
	for _, value := range values {
		var req Request
		if err := json.Unmarshal([]byte(value), &req); err != nil {
			// 跳过无法解析的历史条目，不让单条脏数据卡住整个服务。
			continue
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// Clear 删除服务的未处理请求。
func (r *RedisInbox) Clear(ctx context.Context, serviceID string) error {
	if err := r.client.Del(ctx, r.key(serviceID)).Err(); err != nil {
		return fmt.Errorf("Redis 清理注资请求失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (r *RedisInbox) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

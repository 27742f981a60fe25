package funding

import (
	"context"
	"math/big"
	"sync"
	"time"

	xerrors "AgentTreasury/internal/errors"
	"AgentTreasury/internal/ledger"

	"github.com/google/uuid"
)

// Request 是运行中的 agent 在运行时发起的一笔动态注资请求。
type Request struct {
	ID        string   `json:"id"`
	ServiceID string   `json:"service_id"`
	Chain     string   `json:"chain"`
	Address   string   `json:"address"`
	Asset     string   `json:"asset"`
	Amount    *big.Int `json:"amount"`
	CreatedAt int64    `json:"created_at"`
}

// NewRequest 构造一笔带新 ID 的注资请求。
func NewRequest(serviceID, chain, address, asset string, amount *big.Int) Request {
	if amount == nil {
		amount = new(big.Int)
	}
	return Request{
		ID:        uuid.NewString(),
		ServiceID: serviceID,
		Chain:     chain,
		Address:   address,
		Asset:     asset,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().Unix(),
	}
}

// Inbox 是 agent 注资请求的收件箱。
// Pending 不消费请求；成功注资后由协调器调用 Clear。
type Inbox interface {
	Publish(ctx context.Context, req Request) error
	Pending(ctx context.Context, serviceID string) ([]Request, error)
	Clear(ctx context.Context, serviceID string) error
	Close() error
}

// AggregateRequests 把一组请求折叠为账本形式。
func AggregateRequests(requests []Request) ledger.Amounts {
	amounts := make(ledger.Amounts)
	for _, req := range requests {
		if req.Amount == nil || req.Amount.Sign() <= 0 {
			continue
		}
		amounts.Accumulate(req.Chain, req.Address, req.Asset, req.Amount)
	}
	return amounts
}

// MemoryInbox 把请求保存在进程内，主要用于测试与单机部署。
type MemoryInbox struct {
	mu       sync.Mutex
	requests map[string][]Request
	closed   bool
}

// NewMemoryInbox 创建内存收件箱。
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{requests: make(map[string][]Request)}
}

// Publish 记录一笔注资请求。
func (m *MemoryInbox) Publish(_ context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "收件箱已关闭")
	}
	m.requests[req.ServiceID] = append(m.requests[req.ServiceID], req)
	return nil
}

// Pending 返回服务的未处理请求，不消费。
func (m *MemoryInbox) Pending(_ context.Context, serviceID string) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.requests[serviceID]
	out := make([]Request, len(pending))
	copy(out, pending)
	return out, nil
}

// Clear 清空服务的未处理请求。
func (m *MemoryInbox) Clear(_ context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, serviceID)
	return nil
}

// Close 关闭收件箱。
func (m *MemoryInbox) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

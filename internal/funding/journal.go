package funding

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryStatus 表示流水条目对应转账的结果。
type EntryStatus string

const (
	EntrySubmitted EntryStatus = "submitted"
	EntryFailed    EntryStatus = "failed"
)

// Entry 是一条转账审计流水。流水只做审计追踪，
// 不承担任何余额记账职责——余额永远实时查询链上。
type Entry struct {
	ID        string      `json:"id"`
	ServiceID string      `json:"service_id,omitempty"`
	Chain     string      `json:"chain"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Asset     string      `json:"asset"`
	Amount    *big.Int    `json:"amount"`
	TxHash    string      `json:"tx_hash,omitempty"`
	Status    EntryStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt int64       `json:"created_at"`
}

// NewEntry 构造一条带新 ID 与时间戳的流水。
func NewEntry(serviceID, chain, from, to, asset string, amount *big.Int) Entry {
	if amount == nil {
		amount = new(big.Int)
	}
	return Entry{
		ID:        uuid.NewString(),
		ServiceID: serviceID,
		Chain:     chain,
		From:      from,
		To:        to,
		Asset:     asset,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().Unix(),
	}
}

// Journal 抽象转账流水的持久化。
type Journal interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// MemoryJournal 把流水保存在进程内，主要用于测试。
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryJournal 创建内存流水实例。
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Record 追加一条流水。
func (m *MemoryJournal) Record(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// List 返回最近的流水，按写入倒序。
func (m *MemoryJournal) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Close 释放资源。
func (m *MemoryJournal) Close() error { return nil }

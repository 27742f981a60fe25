package funding

import (
	"sync"
	"time"
)

// serviceRecord 合并"正在注资"标志与冷却截止时间。
// 两个字段必须在同一临界区内读写，避免出现只更新一半的状态。
type serviceRecord struct {
	inProgress    bool
	cooldownUntil time.Time
}

// Tracker 维护每个服务的注资并发状态：进行中标志与冷却窗口。
// 状态仅存在于进程内，按需懒创建，由单把互斥锁保护。
// 测试应为每个用例注入全新实例。
type Tracker struct {
	mu       sync.Mutex
	records  map[string]*serviceRecord
	cooldown time.Duration
	now      func() time.Time
}

// NewTracker 构造并发状态跟踪器。cooldown 为成功注资后的冷却时长。
func NewTracker(cooldown time.Duration) *Tracker {
	return &Tracker{
		records:  make(map[string]*serviceRecord),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Begin 尝试为服务开启一次注资。已有注资在进行时返回
// ErrFundingInProgress；冷却窗口不阻止显式注资，只抑制 agent 请求。
func (t *Tracker) Begin(serviceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.record(serviceID)
	if rec.inProgress {
		return ErrFundingInProgress
	}
	rec.inProgress = true
	return nil
}

// Finish 结束一次注资。无论成败都清除进行中标志；
// 仅在成功时开启冷却窗口，限制 agent 重复请求的频率。
// 标志与冷却时间在同一临界区内更新。
func (t *Tracker) Finish(serviceID string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.record(serviceID)
	rec.inProgress = false
	if success && t.cooldown > 0 {
		rec.cooldownUntil = t.now().Add(t.cooldown)
	}
}

// Status 原子地读取服务的进行中标志与冷却状态。
func (t *Tracker) Status(serviceID string) (inProgress, coolingDown bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.record(serviceID)
	return rec.inProgress, t.now().Before(rec.cooldownUntil)
}

// record 必须在持锁状态下调用。
func (t *Tracker) record(serviceID string) *serviceRecord {
	rec, ok := t.records[serviceID]
	if !ok {
		rec = &serviceRecord{}
		t.records[serviceID] = rec
	}
	return rec
}

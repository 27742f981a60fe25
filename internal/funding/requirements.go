package funding

import (
	"math/big"

	"AgentTreasury/internal/ledger"
)

// Shortfalls 计算把每个地址补到 topup 目标所需的追加金额。
// 对 thresholds 中的每个叶子：余额低于阈值时缺口为 max(topup-余额, 0)，
// 否则为零。输出对每个阈值键都给出显式条目，包括合法的零值，
// 下游聚合与测试依赖这种完整性。
func Shortfalls(balances, thresholds, topups ledger.Amounts) ledger.Amounts {
	out := make(ledger.Amounts)
	thresholds.Walk(func(chain, address, asset string, threshold *big.Int) {
		balance := balances.Get(chain, address, asset)
		shortfall := new(big.Int)
		if balance.Cmp(threshold) < 0 {
			shortfall.Sub(topups.Get(chain, address, asset), balance)
			if shortfall.Sign() < 0 {
				shortfall.SetInt64(0)
			}
		}
		out.Set(chain, address, asset, shortfall)
	})
	return out
}

// SplitCritical 把缺口划分为必须立刻处理的紧急部分与普通部分。
// Master EOA 必须始终留有足够原生币支付自身补给交易的 gas：
// 仅对原生资产，当余额低于 topup 的四分之一时整个缺口视为紧急，
// 绕过冷却窗口；否则紧急部分为零。代币缺口永远是普通部分。
// 对每个原生叶子恒有 critical + remaining == shortfall。
func SplitCritical(balances, topups, shortfalls ledger.Amounts) (critical, remaining ledger.Amounts) {
	critical = make(ledger.Amounts)
	remaining = make(ledger.Amounts)
	quarter := topups.DivInt(4)
	shortfalls.Walk(func(chain, address, asset string, shortfall *big.Int) {
		if ledger.IsNative(asset) &&
			balances.Get(chain, address, asset).Cmp(quarter.Get(chain, address, asset)) < 0 {
			critical.Set(chain, address, asset, shortfall)
			remaining.Set(chain, address, asset, new(big.Int))
			return
		}
		critical.Set(chain, address, asset, new(big.Int))
		remaining.Set(chain, address, asset, shortfall)
	})
	return critical, remaining
}

// RedistributeExcess 把 Master EOA 超出自身 topup 目标的原生币
// 划归未来 Master Safe 的资金池，而不是浪费掉。
// resolveSafe 返回该链上 Master Safe 的地址；返回占位键表示 Safe 尚未
// 部署，此时才计算超额。Safe 已存在的链不产生超额。
// 返回的 remaining 以 topup 为上限。
func RedistributeExcess(balances, topups ledger.Amounts, resolveSafe func(chain string) string) (excess, remaining ledger.Amounts) {
	excess = make(ledger.Amounts)
	remaining = make(ledger.Amounts)
	balances.Walk(func(chain, address, asset string, balance *big.Int) {
		topup := topups.Get(chain, address, asset)
		safe := resolveSafe(chain)
		if !ledger.IsNative(asset) || safe != ledger.MasterSafePlaceholder {
			remaining.Set(chain, address, asset, balance)
			return
		}
		over := new(big.Int).Sub(balance, topup)
		if over.Sign() > 0 {
			excess.Accumulate(chain, safe, asset, over)
			remaining.Set(chain, address, asset, topup)
			return
		}
		remaining.Set(chain, address, asset, balance)
	})
	return excess, remaining
}

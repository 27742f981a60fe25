package funding

import (
	"math/big"
	"testing"

	"AgentTreasury/internal/ledger"
)

const testToken = "0x00000000000000000000000000000000000000ee"

func amounts(chain, address, asset string, value int64) ledger.Amounts {
	a := make(ledger.Amounts)
	a.Set(chain, address, asset, big.NewInt(value))
	return a
}

func TestShortfallsBelowThresholdRefillsToTopup(t *testing.T) {
	balances := amounts("gnosis", "0xabc", ledger.NativeAsset, 100)
	thresholds := amounts("gnosis", "0xabc", ledger.NativeAsset, 200)
	topups := amounts("gnosis", "0xabc", ledger.NativeAsset, 300)

	got := Shortfalls(balances, thresholds, topups)

	want := big.NewInt(200)
	if got.Get("gnosis", "0xabc", ledger.NativeAsset).Cmp(want) != 0 {
		t.Fatalf("unexpected shortfall: got %s want %s", got.Get("gnosis", "0xabc", ledger.NativeAsset), want)
	}
}

func TestShortfallsBalanceAtThresholdIsZero(t *testing.T) {
	balances := amounts("gnosis", "0xabc", ledger.NativeAsset, 200)
	thresholds := amounts("gnosis", "0xabc", ledger.NativeAsset, 200)
	topups := amounts("gnosis", "0xabc", ledger.NativeAsset, 300)

	got := Shortfalls(balances, thresholds, topups)

	value := got.Get("gnosis", "0xabc", ledger.NativeAsset)
	if value.Sign() != 0 {
		t.Fatalf("expected zero shortfall at threshold, got %s", value)
	}
}

func TestShortfallsEmitsExplicitZeroEntries(t *testing.T) {
	balances := amounts("gnosis", "0xabc", ledger.NativeAsset, 500)
	thresholds := amounts("gnosis", "0xabc", ledger.NativeAsset, 200)
	topups := amounts("gnosis", "0xabc", ledger.NativeAsset, 300)

	got := Shortfalls(balances, thresholds, topups)

	// 键必须存在，而不是被省略。
	if _, ok := got["gnosis"]["0xabc"][ledger.NativeAsset]; !ok {
		t.Fatalf("expected explicit zero entry for threshold key, got %v", got)
	}
}

func TestShortfallsClampedWhenTopupBelowBalance(t *testing.T) {
	balances := amounts("gnosis", "0xabc", ledger.NativeAsset, 50)
	thresholds := amounts("gnosis", "0xabc", ledger.NativeAsset, 100)
	topups := amounts("gnosis", "0xabc", ledger.NativeAsset, 30)

	got := Shortfalls(balances, thresholds, topups)

	value := got.Get("gnosis", "0xabc", ledger.NativeAsset)
	if value.Sign() != 0 {
		t.Fatalf("expected clamped zero shortfall, got %s", value)
	}
}

func TestSplitCriticalPartitionsShortfall(t *testing.T) {
	balances := amounts("gnosis", "0xabc", ledger.NativeAsset, 60)
	topups := amounts("gnosis", "0xabc", ledger.NativeAsset, 400)
	shortfalls := amounts("gnosis", "0xabc", ledger.NativeAsset, 340)

	critical, remaining := SplitCritical(balances, topups, shortfalls)

	// 余额 60 < 400/4，整个缺口应为紧急。
	if critical.Get("gnosis", "0xabc", ledger.NativeAsset).Cmp(big.NewInt(340)) != 0 {
		t.Fatalf("expected whole shortfall critical, got %s", critical.Get("gnosis", "0xabc", ledger.NativeAsset))
	}
	sum := ledger.Sum(critical, remaining)
	if !ledger.Equal(sum, shortfalls) {
		t.Fatalf("critical+remaining must equal shortfall: got %s want %s", sum, shortfalls)
	}
}

func TestSplitCriticalAboveQuarterIsRoutine(t *testing.T) {
	balances := amounts("gnosis", "0xabc", ledger.NativeAsset, 150)
	topups := amounts("gnosis", "0xabc", ledger.NativeAsset, 400)
	shortfalls := amounts("gnosis", "0xabc", ledger.NativeAsset, 250)

	critical, remaining := SplitCritical(balances, topups, shortfalls)

	if critical.Get("gnosis", "0xabc", ledger.NativeAsset).Sign() != 0 {
		t.Fatalf("expected no critical part, got %s", critical.Get("gnosis", "0xabc", ledger.NativeAsset))
	}
	if remaining.Get("gnosis", "0xabc", ledger.NativeAsset).Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected full shortfall remaining, got %s", remaining.Get("gnosis", "0xabc", ledger.NativeAsset))
	}
}

func TestSplitCriticalTokensNeverCritical(t *testing.T) {
	balances := amounts("gnosis", "0xabc", testToken, 0)
	topups := amounts("gnosis", "0xabc", testToken, 400)
	shortfalls := amounts("gnosis", "0xabc", testToken, 400)

	critical, remaining := SplitCritical(balances, topups, shortfalls)

	if critical.Get("gnosis", "0xabc", testToken).Sign() != 0 {
		t.Fatalf("token shortfall must never be critical, got %s", critical.Get("gnosis", "0xabc", testToken))
	}
	if remaining.Get("gnosis", "0xabc", testToken).Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("token shortfall must stay routine, got %s", remaining.Get("gnosis", "0xabc", testToken))
	}
}

func TestRedistributeExcessOnlyWithoutSafe(t *testing.T) {
	balances := make(ledger.Amounts)
	balances.Set("gnosis", "0xeoa", ledger.NativeAsset, big.NewInt(700))
	balances.Set("base", "0xeoa", ledger.NativeAsset, big.NewInt(700))
	topups := make(ledger.Amounts)
	topups.Set("gnosis", "0xeoa", ledger.NativeAsset, big.NewInt(400))
	topups.Set("base", "0xeoa", ledger.NativeAsset, big.NewInt(400))

	resolve := func(chain string) string {
		if chain == "base" {
			return "0xsafe"
		}
		return ledger.MasterSafePlaceholder
	}

	excess, remaining := RedistributeExcess(balances, topups, resolve)

	// gnosis 没有 Safe：超额 300 归入占位池，剩余封顶在 topup。
	if excess.Get("gnosis", ledger.MasterSafePlaceholder, ledger.NativeAsset).Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected excess: got %s", excess.Get("gnosis", ledger.MasterSafePlaceholder, ledger.NativeAsset))
	}
	if remaining.Get("gnosis", "0xeoa", ledger.NativeAsset).Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("remaining must be capped at topup, got %s", remaining.Get("gnosis", "0xeoa", ledger.NativeAsset))
	}
	// base 已有 Safe：不计算超额。
	if excess.Get("base", "0xsafe", ledger.NativeAsset).Sign() != 0 {
		t.Fatalf("deployed safe chain must not produce excess")
	}
	if remaining.Get("base", "0xeoa", ledger.NativeAsset).Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("deployed safe chain keeps full balance, got %s", remaining.Get("base", "0xeoa", ledger.NativeAsset))
	}
}

func TestRedistributeExcessTokenPassesThrough(t *testing.T) {
	balances := amounts("gnosis", "0xeoa", testToken, 700)
	topups := amounts("gnosis", "0xeoa", testToken, 400)

	excess, remaining := RedistributeExcess(balances, topups, func(string) string {
		return ledger.MasterSafePlaceholder
	})

	if !excess.IsZero() {
		t.Fatalf("token balances must not redistribute, got %s", excess)
	}
	if remaining.Get("gnosis", "0xeoa", testToken).Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("token balance must pass through, got %s", remaining.Get("gnosis", "0xeoa", testToken))
	}
}

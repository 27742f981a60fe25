package ledger

import (
	"math/big"
	"testing"
)

func amt(v int64) *big.Int { return big.NewInt(v) }

func TestSumTreatsMissingLeavesAsZero(t *testing.T) {
	a := Amounts{}
	a.Set("gnosis", "0xA", NativeAsset, amt(100))
	a.Set("gnosis", "0xA", "0xT1", amt(5))

	b := Amounts{}
	b.Set("gnosis", "0xA", NativeAsset, amt(40))
	b.Set("base", "0xB", NativeAsset, amt(7))

	sum := Sum(a, b)
	if got := sum.Get("gnosis", "0xA", NativeAsset); got.Cmp(amt(140)) != 0 {
		t.Fatalf("原生币求和错误: %s", got)
	}
	if got := sum.Get("gnosis", "0xA", "0xT1"); got.Cmp(amt(5)) != 0 {
		t.Fatalf("代币叶子丢失: %s", got)
	}
	if got := sum.Get("base", "0xB", NativeAsset); got.Cmp(amt(7)) != 0 {
		t.Fatalf("单侧叶子未按零填充: %s", got)
	}
}

func TestSubClampedNeverGoesNegative(t *testing.T) {
	a := Amounts{}
	a.Set("gnosis", "0xA", NativeAsset, amt(50))
	a.Set("gnosis", "0xA", "0xT1", amt(10))

	b := Amounts{}
	b.Set("gnosis", "0xA", NativeAsset, amt(80))

	out := SubClamped(a, b)
	if got := out.Get("gnosis", "0xA", NativeAsset); got.Sign() != 0 {
		t.Fatalf("差值应钳制为零, got %s", got)
	}
	if got := out.Get("gnosis", "0xA", "0xT1"); got.Cmp(amt(10)) != 0 {
		t.Fatalf("右侧缺失键应按零处理, got %s", got)
	}
}

func TestLTEComparesEveryLeaf(t *testing.T) {
	need := Amounts{}
	need.Set("gnosis", "0xS", NativeAsset, amt(100))
	need.Set("base", "0xS", "0xT1", amt(3))

	have := Amounts{}
	have.Set("gnosis", "0xS", NativeAsset, amt(100))
	have.Set("base", "0xS", "0xT1", amt(3))

	if !LTE(need, have) {
		t.Fatal("等值账本应满足 LTE")
	}

	have.Set("base", "0xS", "0xT1", amt(2))
	if LTE(need, have) {
		t.Fatal("存在不足叶子时 LTE 应为 false")
	}

	// 右侧整条链缺失时按零比较。
	if LTE(need, Amounts{}) {
		t.Fatal("对空账本比较应为 false")
	}
	if !LTE(Amounts{}, Amounts{}) {
		t.Fatal("空对空应为 true")
	}
}

func TestDivIntHalvesLeaves(t *testing.T) {
	a := Amounts{}
	a.Set("gnosis", "0xA", NativeAsset, amt(101))

	half := a.DivInt(2)
	if got := half.Get("gnosis", "0xA", NativeAsset); got.Cmp(amt(50)) != 0 {
		t.Fatalf("整数除法结果错误: %s", got)
	}
}

func TestAggregateByAsset(t *testing.T) {
	a := Amounts{}
	a.Set("gnosis", "0xA", NativeAsset, amt(10))
	a.Set("gnosis", "0xB", NativeAsset, amt(15))
	a.Set("gnosis", "0xB", "0xT1", amt(4))

	agg := a.AggregateByAsset()
	if got := agg["gnosis"][NativeAsset]; got.Cmp(amt(25)) != 0 {
		t.Fatalf("原生币聚合错误: %s", got)
	}
	if got := agg["gnosis"]["0xT1"]; got.Cmp(amt(4)) != 0 {
		t.Fatalf("代币聚合错误: %s", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	a := Amounts{}
	a.Set("gnosis", "0xA", NativeAsset, amt(10))

	v := a.Get("gnosis", "0xA", NativeAsset)
	v.SetInt64(999)
	if got := a.Get("gnosis", "0xA", NativeAsset); got.Cmp(amt(10)) != 0 {
		t.Fatalf("Get 泄露了内部指针: %s", got)
	}
}

func TestIsZero(t *testing.T) {
	a := Amounts{}
	a.Set("gnosis", "0xA", NativeAsset, amt(0))
	if !a.IsZero() {
		t.Fatal("全零账本应判定为零")
	}
	a.Set("gnosis", "0xA", "0xT1", amt(1))
	if a.IsZero() {
		t.Fatal("存在正叶子时不应判定为零")
	}
}
